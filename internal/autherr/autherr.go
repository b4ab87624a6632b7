// Package autherr define la taxonomía de errores de autenticación.
//
// Cada fallo de provider/red se clasifica en una de estas clases antes de
// cruzar la frontera del coordinador de sesión. La clase determina la
// política: Configuration e Provider son terminales, InteractionRequired
// habilita una única escalación interactiva, Network es terminal para el
// intento (reintentable manualmente) y Validation nunca tumba la sesión
// local.
package autherr

import (
	"errors"
	"fmt"
)

// Class identifica la clase de fallo de autenticación.
type Class string

const (
	// ClassConfiguration: provider deshabilitado o credenciales placeholder.
	// No reintentable; el usuario debe saber qué capacidad falta.
	ClassConfiguration Class = "configuration"

	// ClassInteractionRequired: la adquisición silenciosa no puede proceder
	// sin interacción del usuario. Recuperable exactamente una vez.
	ClassInteractionRequired Class = "interaction_required"

	// ClassProvider: consentimiento denegado, aplicación deshabilitada,
	// tenant incorrecto. Terminal; se expone como error de estado.
	ClassProvider Class = "provider"

	// ClassNetwork: fallo de red durante el intercambio de tokens.
	// Terminal para el intento; seguro de reintentar manualmente.
	ClassNetwork Class = "network"

	// ClassValidation: el handshake de validación con el backend falló.
	// No fatal; la sesión local sobrevive.
	ClassValidation Class = "validation"
)

// Error es el error tipado de la capa de autenticación.
type Error struct {
	Class    Class
	Provider string // tag del provider involucrado ("" si no aplica)
	Message  string
	Err      error // causa original, no se expone al usuario
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Class)
	}
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is permite errors.Is contra los centinelas de clase: dos *Error matchean
// si comparten clase, sin importar provider/mensaje/causa.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// Centinelas por clase para usar con errors.Is.
var (
	ErrConfiguration       = &Error{Class: ClassConfiguration}
	ErrInteractionRequired = &Error{Class: ClassInteractionRequired}
	ErrProvider            = &Error{Class: ClassProvider}
	ErrNetwork             = &Error{Class: ClassNetwork}
	ErrValidation          = &Error{Class: ClassValidation}
)

// Configuration construye un error de configuración para un provider.
func Configuration(provider, message string) *Error {
	return &Error{Class: ClassConfiguration, Provider: provider, Message: message}
}

// InteractionRequired señala que la adquisición silenciosa necesita al usuario.
func InteractionRequired(provider string, cause error) *Error {
	return &Error{Class: ClassInteractionRequired, Provider: provider, Message: "se requiere interacción del usuario", Err: cause}
}

// Provider construye un error terminal del lado del IDP.
func Provider(provider, message string, cause error) *Error {
	return &Error{Class: ClassProvider, Provider: provider, Message: message, Err: cause}
}

// Network construye un error de red durante un intercambio.
func Network(provider string, cause error) *Error {
	return &Error{Class: ClassNetwork, Provider: provider, Message: "fallo de red durante el intercambio de tokens", Err: cause}
}

// Validation construye un error no-fatal del handshake con el backend.
func Validation(provider string, cause error) *Error {
	return &Error{Class: ClassValidation, Provider: provider, Message: "validación backend falló", Err: cause}
}

// IsInteractionRequired reporta si err (o su cadena) es de clase recuperable.
func IsInteractionRequired(err error) bool {
	return errors.Is(err, ErrInteractionRequired)
}

// IsConfiguration reporta si err es de clase configuración.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
