// Package delegated es el cliente del camino de autenticación delegada
// provisto por el host (/.auth/*): login por navegación completa, verdad
// de sesión por cookie del servidor y logout por navegación.
//
// DEPRECATED: el modelo canónico es el de tokens del coordinador de
// sesión. Este cliente se conserva como shim explícitamente deprecado
// para hosts que todavía exponen /.auth; nunca alimenta AuthState y no se
// mezcla con el camino de tokens.
package delegated

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/authbridge/internal/identity"
)

// Client resuelve las URLs del host y consulta el principal vigente.
type Client struct {
	base string
	http *http.Client
}

func New(baseURL string) (*Client, error) {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("delegated: base URL vacía")
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// LoginURL arma la URL de navegación de login del host para el provider.
func (c *Client) LoginURL(provider, postLoginRedirect string) string {
	u := c.base + "/.auth/login/" + url.PathEscape(provider)
	if postLoginRedirect != "" {
		u += "?post_login_redirect_uri=" + url.QueryEscape(postLoginRedirect)
	}
	return u
}

// LogoutURL arma la URL de navegación de logout del host.
func (c *Client) LogoutURL(postLogoutRedirect string) string {
	u := c.base + "/.auth/logout"
	if postLogoutRedirect != "" {
		u += "?post_logout_redirect_uri=" + url.QueryEscape(postLogoutRedirect)
	}
	return u
}

type meReply struct {
	ClientPrincipal *identity.Principal `json:"clientPrincipal"`
}

// Me consulta la verdad de sesión del host. Devuelve (nil, nil) cuando el
// host reporta que no hay sesión (clientPrincipal null).
func (c *Client) Me(ctx context.Context) (*identity.Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/.auth/me", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("delegated: me http %d", resp.StatusCode)
	}
	var reply meReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("delegated: respuesta de me ilegible: %w", err)
	}
	return reply.ClientPrincipal, nil
}
