package http

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/authbridge/internal/observability/logger"
	"github.com/dropDatabas3/authbridge/internal/provider"
	"github.com/dropDatabas3/authbridge/internal/session"
	"github.com/dropDatabas3/authbridge/internal/token/microsoft"
)

// PromptBroker conecta el surface interactivo con el request HTTP que lo
// originó: el acquirer entrega la URL de autorización y el handler del
// login la devuelve al caller para que abra el popup.
type PromptBroker struct {
	ch chan string
}

func NewPromptBroker() *PromptBroker {
	return &PromptBroker{ch: make(chan string, 1)}
}

// Prompt implementa microsoft.PromptFunc.
func (b *PromptBroker) Prompt(ctx context.Context, authURL string) error {
	select {
	case b.ch <- authURL:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handlers agrupa los endpoints del bridge.
type Handlers struct {
	Coordinator *session.Coordinator
	Microsoft   *microsoft.Client // nil cuando el provider está deshabilitado
	Prompt      *PromptBroker
	LoginPath   string
}

type sessionReply struct {
	Status        session.Status `json:"status"`
	Loading       bool           `json:"loading"`
	Authenticated bool           `json:"authenticated"`
	User          any            `json:"user,omitempty"`
	Error         string         `json:"error,omitempty"`
}

func snapshotReply(st session.AuthState) sessionReply {
	reply := sessionReply{
		Status:        st.Status,
		Loading:       st.Loading,
		Authenticated: st.Authenticated(),
	}
	if st.User != nil {
		reply.User = st.User
	}
	if st.Err != nil {
		reply.Error = st.Err.Error()
	}
	return reply
}

// Session expone el snapshot de AuthState.
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, snapshotReply(h.Coordinator.State()))
}

// LoginRedirect inicia el flujo de página completa: 302 al surface del
// provider. El resultado vuelve por /auth/callback y, si el proceso murió
// en el medio, por el drenaje del próximo arranque.
func (h *Handlers) LoginRedirect(w http.ResponseWriter, r *http.Request) {
	p := provider.Parse(chi.URLParam(r, "provider"))
	if p != provider.Microsoft || h.Microsoft == nil {
		WriteError(w, http.StatusConflict, "configuration", "provider sin flujo de redirect")
		return
	}
	authURL, err := h.Microsoft.BeginRedirect(r.Context())
	if err != nil {
		WriteAuthError(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// LoginPopup dispara el login y devuelve la URL de autorización para que
// el caller abra el popup. El login queda en vuelo hasta que
// /auth/callback lo resuelva, el usuario lo descarte o venza su timeout.
// Si la adquisición se resuelve sin interacción (silencioso), responde el
// estado final directamente.
func (h *Handlers) LoginPopup(w http.ResponseWriter, r *http.Request) {
	p := provider.Parse(chi.URLParam(r, "provider"))
	if !p.Valid() {
		WriteError(w, http.StatusBadRequest, "invalid_provider", "provider desconocido")
		return
	}
	if h.Prompt == nil {
		WriteError(w, http.StatusConflict, "configuration", "sin surface interactivo")
		return
	}

	errCh := make(chan error, 1)
	go func() {
		// el login en vuelo sobrevive al request que lo originó
		ctx := logger.ToContext(context.Background(), logger.From(r.Context()))
		errCh <- h.Coordinator.Login(ctx, p)
	}()

	waitCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	select {
	case authURL := <-h.Prompt.ch:
		WriteJSON(w, http.StatusAccepted, map[string]string{"auth_url": authURL})
	case err := <-errCh:
		// cerró sin pedir interacción: silencioso exitoso o fallo terminal
		if err != nil {
			WriteAuthError(w, err)
			return
		}
		h.Session(w, r)
	case <-waitCtx.Done():
		WriteError(w, http.StatusGatewayTimeout, "timeout", "el provider no entregó la URL de autorización")
	}
}

// Callback recibe el retorno del surface del provider. Un error del IDP
// resuelve el intento en vuelo como rechazo; un código se redime contra el
// intento en vuelo o contra el registro persistido del flujo de redirect.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	if h.Microsoft == nil {
		WriteError(w, http.StatusConflict, "configuration", "provider sin configurar")
		return
	}
	q := r.URL.Query()
	state := q.Get("state")

	if e := q.Get("error"); e != "" {
		reason := q.Get("error_description")
		if reason == "" {
			reason = e
		}
		h.Microsoft.Cancel(state, reason)
		http.Redirect(w, r, h.LoginPath+"?error="+url.QueryEscape(e), http.StatusFound)
		return
	}

	code := q.Get("code")
	if state == "" || code == "" {
		WriteError(w, http.StatusBadRequest, "invalid_callback", "faltan state o code")
		return
	}

	_, delivered, err := h.Microsoft.Redeem(r.Context(), state, code)
	if err != nil {
		WriteAuthError(w, err)
		return
	}
	if !delivered {
		// flujo de redirect con el proceso vivo: drenar el registro recién
		// persistido y aplicarlo por el camino único de escritura
		if rr, derr := h.Microsoft.CompleteRedirect(r.Context()); derr == nil && rr != nil {
			h.Coordinator.NotifyResult(r.Context(), provider.Microsoft, rr)
		}
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, map[string]string{"login": "completado"})
}

// Credential recibe un credential emitido fuera de banda (el botón de
// identidad del frontend) y lo vuelve sesión.
func (h *Handlers) Credential(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Credential string `json:"credential"`
	}
	if !ReadJSON(w, r, &body) {
		return
	}
	if body.Credential == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "falta credential")
		return
	}
	if err := h.Coordinator.LoginWithCredential(r.Context(), body.Credential); err != nil {
		WriteAuthError(w, err)
		return
	}
	h.Session(w, r)
}

// Password autentica usuario y contraseña contra el backend.
func (h *Handlers) Password(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !ReadJSON(w, r, &body) {
		return
	}
	if body.Username == "" || body.Password == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "faltan username o password")
		return
	}
	if err := h.Coordinator.LoginWithPassword(r.Context(), body.Username, body.Password); err != nil {
		WriteAuthError(w, err)
		return
	}
	h.Session(w, r)
}

// Logout cierra la sesión local y dispara el sign-out best effort.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.Coordinator.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
