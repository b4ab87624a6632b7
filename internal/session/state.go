// Package session implementa al coordinador de sesión: el único dueño y
// único escritor del estado de autenticación del proceso.
package session

import (
	"github.com/dropDatabas3/authbridge/internal/identity"
)

// Status es la fase del ciclo de vida de la sesión.
type Status string

const (
	StatusUninitialized   Status = "uninitialized"
	StatusInitializing    Status = "initializing"
	StatusAuthenticating  Status = "authenticating"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// AuthState es el snapshot observable de la sesión. Los consumidores lo
// reciben por valor: mutarlo no afecta al coordinador.
type AuthState struct {
	Status  Status
	User    *identity.User
	Loading bool
	// Err es el último fallo visible. Solo lo limpia ClearError o una
	// operación posterior exitosa, nunca un fallo silencioso.
	Err error
}

// Authenticated reporta si hay sesión activa.
func (s AuthState) Authenticated() bool { return s.User != nil }
