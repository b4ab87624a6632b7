// Package backend es el cliente HTTP hacia el backend de la aplicación:
// el handshake de validación post-login y el endpoint de tokens para el
// login tradicional. El secret del backend vive del otro lado de esta
// frontera; acá solo viajan bearers.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/authbridge/internal/autherr"
	"github.com/dropDatabas3/authbridge/internal/identity"
	"github.com/dropDatabas3/authbridge/internal/observability/logger"
	"github.com/dropDatabas3/authbridge/internal/provider"
)

// Config ubica el backend.
type Config struct {
	BaseURL      string
	ValidatePath string // default /api/auth/oauth/validate
	TokenPath    string // default /api/auth/token
	Timeout      time.Duration
}

// Client habla con el backend. Las fallas de Validate son no-fatales por
// contrato: la sesión local sobrevive a un backend caído.
type Client struct {
	base         string
	validatePath string
	tokenPath    string
	http         *http.Client
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, autherr.Configuration("", "backend.base_url sin configurar")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, autherr.Configuration("", fmt.Sprintf("backend.base_url inválida: %v", err))
	}
	vp := cfg.ValidatePath
	if vp == "" {
		vp = "/api/auth/oauth/validate"
	}
	tp := cfg.TokenPath
	if tp == "" {
		tp = "/api/auth/token"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:         base,
		validatePath: vp,
		tokenPath:    tp,
		http:         &http.Client{Timeout: timeout},
	}, nil
}

// Validate hace el handshake post-login: presenta el token como bearer y
// declara el provider en el body. Cualquier falla vuelve clasificada como
// validation; el caller la registra y sigue (disponibilidad sobre
// consistencia estricta).
func (c *Client) Validate(ctx context.Context, accessToken string, p provider.Identity) error {
	body, _ := json.Marshal(map[string]string{"provider": string(p)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+c.validatePath, bytes.NewReader(body))
	if err != nil {
		return autherr.Validation(string(p), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return autherr.Validation(string(p), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		logger.From(ctx).Warn("validación backend rechazada",
			logger.Provider(string(p)), logger.Status(resp.StatusCode))
		return autherr.Validation(string(p), fmt.Errorf("validate http %d", resp.StatusCode))
	}
	return nil
}

// tokenReply es la respuesta del endpoint de tokens del backend.
type tokenReply struct {
	AccessToken string             `json:"access_token"`
	TokenType   string             `json:"token_type"`
	Principal   identity.Principal `json:"principal"`
}

// LoginPassword autentica usuario y contraseña contra el backend y devuelve
// el principal emitido junto con su access token. Un 401 es un error de
// provider (credenciales rechazadas); un 5xx o una falla de transporte es
// de red.
func (c *Client) LoginPassword(ctx context.Context, username, password string) (identity.Principal, string, error) {
	tag := string(provider.Traditional)

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+c.tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return identity.Principal{}, "", autherr.Provider(tag, "no se pudo armar el request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return identity.Principal{}, "", autherr.Network(tag, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return identity.Principal{}, "", autherr.Provider(tag, "usuario o contraseña incorrectos", nil)
	case resp.StatusCode/100 == 5:
		return identity.Principal{}, "", autherr.Network(tag, fmt.Errorf("token http %d", resp.StatusCode))
	case resp.StatusCode/100 != 2:
		return identity.Principal{}, "", autherr.Provider(tag, fmt.Sprintf("token http %d", resp.StatusCode), nil)
	}

	var tr tokenReply
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return identity.Principal{}, "", autherr.Provider(tag, "respuesta del backend ilegible", err)
	}
	if tr.AccessToken == "" {
		return identity.Principal{}, "", autherr.Provider(tag, "el backend no emitió token", nil)
	}
	return tr.Principal, tr.AccessToken, nil
}
