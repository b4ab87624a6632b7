package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/authbridge/internal/delegated"
	"github.com/dropDatabas3/authbridge/internal/identity"
)

// LegacyHandlers expone el camino delegado /.auth del host como endpoints
// de compatibilidad bajo /legacy/*.
//
// DEPRECATED junto con internal/delegated: existe solo para clientes que
// todavía navegan contra el host. La verdad de sesión de este camino es
// la cookie del host; jamás alimenta AuthState ni se mezcla con el
// camino de tokens.
type LegacyHandlers struct {
	Client *delegated.Client
}

// Login redirige a la navegación de login del host.
func (h *LegacyHandlers) Login(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "provider")
	target := h.Client.LoginURL(p, r.URL.Query().Get("post_login_redirect_uri"))
	http.Redirect(w, r, target, http.StatusFound)
}

// Me reexpone la verdad de sesión del host con su mismo shape:
// clientPrincipal null cuando no hay sesión.
func (h *LegacyHandlers) Me(w http.ResponseWriter, r *http.Request) {
	principal, err := h.Client.Me(r.Context())
	if err != nil {
		WriteError(w, http.StatusBadGateway, "legacy_unavailable", "el host no respondió la sesión delegada")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, struct {
		ClientPrincipal *identity.Principal `json:"clientPrincipal"`
	}{principal})
}

// Logout redirige a la navegación de logout del host.
func (h *LegacyHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	target := h.Client.LogoutURL(r.URL.Query().Get("post_logout_redirect_uri"))
	http.Redirect(w, r, target, http.StatusFound)
}
