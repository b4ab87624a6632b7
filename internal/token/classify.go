package token

import (
	"context"
	"errors"
	"net"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/dropDatabas3/authbridge/internal/autherr"
)

// Códigos OAuth que significan "el provider necesita al usuario presente".
// invalid_grant cubre refresh tokens expirados o revocados.
var interactionCodes = map[string]bool{
	"interaction_required": true,
	"login_required":       true,
	"consent_required":     true,
	"invalid_grant":        true,
}

// Códigos terminales del lado del provider.
var providerCodes = map[string]string{
	"access_denied":       "el usuario denegó el consentimiento",
	"unauthorized_client": "la aplicación no está autorizada en el tenant",
	"invalid_client":      "la aplicación fue deshabilitada o eliminada",
	"invalid_scope":       "scope inválido para la aplicación",
	"temporarily_unavailable": "el provider no está disponible",
}

// Classify convierte un fallo crudo del intercambio OAuth en la clase de la
// taxonomía. La clase decide si el coordinador escala, reintenta o rinde.
func Classify(providerTag string, err error) error {
	if err == nil {
		return nil
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		code := re.ErrorCode
		if interactionCodes[code] {
			return autherr.InteractionRequired(providerTag, err)
		}
		if msg, ok := providerCodes[code]; ok {
			return autherr.Provider(providerTag, msg, err)
		}
		if re.Response != nil && re.Response.StatusCode >= 500 {
			return autherr.Network(providerTag, err)
		}
		return autherr.Provider(providerTag, "el provider rechazó la solicitud", err)
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return autherr.Network(providerTag, err)
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return autherr.Network(providerTag, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return autherr.Network(providerTag, err)
	}

	// Sin más señal, lo tratamos como terminal del provider.
	return autherr.Provider(providerTag, "fallo de autenticación", err)
}
