// Package provider resuelve qué identity providers están habilitados y con
// qué parámetros. La resolución ocurre una sola vez al arrancar el proceso y
// el resultado es de solo lectura.
package provider

// Identity identifica la familia de provider de una sesión.
// Es inmutable una vez que existe la sesión.
type Identity string

const (
	Microsoft   Identity = "microsoft"
	Google      Identity = "google"
	Traditional Identity = "traditional"
	None        Identity = "none"
)

// Valid reporta si el tag corresponde a un provider real (no None).
func (i Identity) Valid() bool {
	switch i {
	case Microsoft, Google, Traditional:
		return true
	}
	return false
}

func (i Identity) String() string { return string(i) }

// Parse convierte un string a Identity. Valores desconocidos dan None.
func Parse(s string) Identity {
	switch Identity(s) {
	case Microsoft:
		return Microsoft
	case Google:
		return Google
	case Traditional:
		return Traditional
	}
	return None
}

// RuntimeConfig es la configuración efectiva de un provider.
// Enabled es derivado: true solo si el toggle está prendido y todos los
// campos requeridos resolvieron a valores reales (no placeholder).
type RuntimeConfig struct {
	Provider    Identity
	Enabled     bool
	ClientID    string
	TenantID    string
	Authority   string
	Scopes      []string
	RedirectURI string

	// Missing lista los nombres de los campos requeridos ausentes o con
	// valor placeholder. Vacío cuando Enabled.
	Missing []string
}
