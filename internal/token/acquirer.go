// Package token define el protocolo uniforme de adquisición de tokens:
// intentar silencioso primero y escalar exactamente una vez a un flujo
// interactivo cuando el provider exige interacción.
package token

import (
	"context"
	"time"
)

// Account es el estado de cuenta cacheado que habilita la adquisición
// silenciosa (la "sesión del SDK" que sobrevive al reload del redirect).
type Account struct {
	// Subject es el identificador local de la cuenta en el provider.
	Subject  string `json:"subject"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	// RefreshToken habilita la renovación sin interacción. Nunca sale
	// del almacén sellado.
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Result es el payload de una adquisición exitosa.
type Result struct {
	Account     Account
	AccessToken string
	Expiry      time.Time
}

// Valid reporta si el access token del resultado sigue vigente.
// Un margen de 30s evita entregar tokens al borde de expirar.
func (r *Result) Valid() bool {
	if r == nil || r.AccessToken == "" {
		return false
	}
	if r.Expiry.IsZero() {
		return true
	}
	return time.Now().Add(30 * time.Second).Before(r.Expiry)
}

// Acquirer envuelve el flujo nativo de un provider detrás del protocolo
// silencioso-luego-interactivo.
type Acquirer interface {
	// CompleteRedirect drena el resultado de un redirect de página completa
	// recién terminado. Debe llamarse una vez al arrancar, antes de
	// cualquier otra operación del provider: si se saltea, un login recién
	// completado queda invisible para el resto del sistema.
	// Devuelve (nil, nil) cuando no hay redirect pendiente.
	CompleteRedirect(ctx context.Context) (*Result, error)

	// BeginRedirect inicia el flujo de redirect de página completa y
	// devuelve la URL del surface de login del provider. Nunca devuelve un
	// token: el token aparece recién en el próximo arranque via
	// CompleteRedirect.
	BeginRedirect(ctx context.Context) (string, error)

	// AcquireInteractive abre el surface de autenticación modal y bloquea
	// hasta resultado, cancelación del usuario o timeout. Una cancelación
	// resuelve como error, nunca como cuelgue.
	AcquireInteractive(ctx context.Context) (*Result, error)

	// AcquireSilent intenta obtener un token fresco sin interacción usando
	// el estado cacheado de la cuenta.
	AcquireSilent(ctx context.Context, acct Account) (*Result, error)

	// SignOut cierra la sesión en el provider. Best effort.
	SignOut(ctx context.Context) error
}
