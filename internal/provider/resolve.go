package provider

import (
	"strings"

	"github.com/dropDatabas3/authbridge/internal/config"
)

// Sentinelas de placeholder. Un valor que empieza con cualquiera de estos
// prefijos cuenta como no configurado, nunca como identificador válido.
var placeholderPrefixes = []string{
	"PASTE_YOUR",
	"YOUR_",
	"CHANGEME",
	"REPLACE_ME",
	"<",
}

func isPlaceholder(v string) bool {
	v = strings.ToUpper(strings.TrimSpace(v))
	for _, p := range placeholderPrefixes {
		if strings.HasPrefix(v, p) {
			return true
		}
	}
	return false
}

// fieldValue valida un campo requerido: devuelve el nombre del campo como
// faltante si está vacío o es placeholder.
func requireField(missing []string, name, value string) []string {
	if strings.TrimSpace(value) == "" || isPlaceholder(value) {
		return append(missing, name)
	}
	return missing
}

// Set es el conjunto resuelto de providers. Solo lectura después de Resolve.
type Set struct {
	byID map[Identity]RuntimeConfig
}

// Resolve deriva la configuración efectiva de cada provider a partir de la
// configuración del proceso. Es una función pura de la config: enumera
// exactamente los campos requeridos por provider y reporta por nombre los
// que faltan, en lugar de adivinar por substring.
//
// Configuración ausente NO es un error: es una capacidad deshabilitada.
func Resolve(cfg *config.Config) *Set {
	s := &Set{byID: make(map[Identity]RuntimeConfig, 3)}

	// Microsoft: directorio empresarial. Requiere client, tenant y redirect.
	{
		mc := cfg.Providers.Microsoft
		rc := RuntimeConfig{
			Provider:    Microsoft,
			ClientID:    strings.TrimSpace(mc.ClientID),
			TenantID:    strings.TrimSpace(mc.TenantID),
			Authority:   strings.TrimSpace(mc.Authority),
			Scopes:      append([]string(nil), mc.Scopes...),
			RedirectURI: strings.TrimSpace(mc.RedirectURI),
		}
		var missing []string
		missing = requireField(missing, "client_id", mc.ClientID)
		missing = requireField(missing, "tenant_id", mc.TenantID)
		missing = requireField(missing, "redirect_uri", mc.RedirectURI)
		rc.Missing = missing
		rc.Enabled = mc.Enabled && len(missing) == 0
		s.byID[Microsoft] = rc
	}

	// Google: provider de consumo. El credential llega por callback in-page,
	// así que solo el client_id es requerido.
	{
		gc := cfg.Providers.Google
		rc := RuntimeConfig{
			Provider:    Google,
			ClientID:    strings.TrimSpace(gc.ClientID),
			Scopes:      append([]string(nil), gc.Scopes...),
			RedirectURI: strings.TrimSpace(gc.RedirectURI),
		}
		var missing []string
		missing = requireField(missing, "client_id", gc.ClientID)
		rc.Missing = missing
		rc.Enabled = gc.Enabled && len(missing) == 0
		s.byID[Google] = rc
	}

	// Traditional: usuario/contraseña contra el backend. Sin credenciales
	// de provider; requiere que el backend esté configurado.
	{
		rc := RuntimeConfig{Provider: Traditional}
		var missing []string
		missing = requireField(missing, "backend.base_url", cfg.Backend.BaseURL)
		rc.Missing = missing
		rc.Enabled = cfg.Providers.Traditional.Enabled && len(missing) == 0
		s.byID[Traditional] = rc
	}

	return s
}

// IsEnabled reporta si el provider quedó habilitado tras la resolución.
func (s *Set) IsEnabled(p Identity) bool {
	rc, ok := s.byID[p]
	return ok && rc.Enabled
}

// Get devuelve la configuración efectiva del provider.
func (s *Set) Get(p Identity) (RuntimeConfig, bool) {
	rc, ok := s.byID[p]
	return rc, ok
}
