// Package identity define el registro canónico de usuario de la sesión y la
// normalización de los payloads nativos de cada provider hacia ese registro.
//
// La normalización es todo-o-nada: nunca se construye un User parcial.
package identity

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/authbridge/internal/provider"
)

// User es el registro de sesión. Se crea en un login exitoso y se destruye
// en logout.
type User struct {
	// ID es el identificador de sujeto, único dentro de su provider.
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	DisplayName string            `json:"displayName"`
	Provider    provider.Identity `json:"provider"`
	// AccessToken es opaco para esta capa; se presenta como bearer.
	AccessToken       string `json:"-"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
}

// DirectoryAccount son los hechos de cuenta que reporta el provider de
// directorio para una sesión iniciada.
type DirectoryAccount struct {
	LocalID  string // identificador local de la cuenta (sujeto)
	Username string // UPN / email
	Name     string // display name, puede venir vacío
}

var (
	ErrIncompleteAccount  = errors.New("identity: cuenta de directorio incompleta")
	ErrMalformedTokenBody = errors.New("identity: identity token malformado")
)

// FromDirectoryAccount normaliza cuenta + access token del provider de
// directorio. DisplayName cae al username cuando el provider no manda name.
func FromDirectoryAccount(acct DirectoryAccount, accessToken string) (*User, error) {
	if strings.TrimSpace(acct.LocalID) == "" || strings.TrimSpace(acct.Username) == "" || accessToken == "" {
		return nil, ErrIncompleteAccount
	}
	name := acct.Name
	if strings.TrimSpace(name) == "" {
		name = acct.Username
	}
	return &User{
		ID:          acct.LocalID,
		Email:       acct.Username,
		DisplayName: name,
		Provider:    provider.Microsoft,
		AccessToken: accessToken,
	}, nil
}

// tokenClaims son los claims que nos interesan del identity token firmado.
type tokenClaims struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// FromIdentityToken normaliza un identity token firmado (header.payload.sig)
// decodificando el payload localmente, sin round trip de red. Un payload
// malformado (cantidad de segmentos, base64 o JSON inválido) es un fallo de
// normalización, nunca un User a medias.
func FromIdentityToken(raw string) (*User, error) {
	payload, err := DecodeTokenPayload(raw)
	if err != nil {
		return nil, err
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: payload JSON: %v", ErrMalformedTokenBody, err)
	}
	if strings.TrimSpace(claims.Sub) == "" || strings.TrimSpace(claims.Email) == "" {
		return nil, fmt.Errorf("%w: faltan claims sub/email", ErrMalformedTokenBody)
	}
	name := claims.Name
	if strings.TrimSpace(name) == "" {
		name = claims.Email
	}
	return &User{
		ID:                claims.Sub,
		Email:             claims.Email,
		DisplayName:       name,
		Provider:          provider.Google,
		AccessToken:       raw,
		ProfilePictureURL: claims.Picture,
	}, nil
}

// DecodeTokenPayload valida la estructura de tres segmentos y decodifica el
// segmento payload (base64url JSON). No verifica la firma: eso es trabajo
// del backend o del verificador JWKS.
func DecodeTokenPayload(raw string) ([]byte, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %d segmentos", ErrMalformedTokenBody, len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		// tolerar padding explícito
		payload, err = base64.URLEncoding.DecodeString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: base64: %v", ErrMalformedTokenBody, err)
		}
	}
	return payload, nil
}

// Principal es la identidad canónica que reporta el backend/host.
type Principal struct {
	UserID           string   `json:"userId"`
	UserDetails      string   `json:"userDetails"`
	Roles            []string `json:"userRoles"`
	IdentityProvider string   `json:"identityProvider"`
}

// FromPrincipal normaliza un principal emitido por el backend (login
// tradicional). El email y el display name salen de los detalles del
// principal cuando el backend no manda campos separados.
func FromPrincipal(p Principal, accessToken string) (*User, error) {
	if strings.TrimSpace(p.UserID) == "" || accessToken == "" {
		return nil, ErrIncompleteAccount
	}
	display := p.UserDetails
	if strings.TrimSpace(display) == "" {
		display = p.UserID
	}
	return &User{
		ID:          p.UserID,
		Email:       p.UserDetails,
		DisplayName: display,
		Provider:    provider.Traditional,
		AccessToken: accessToken,
	}, nil
}
