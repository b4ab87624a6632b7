package http

import (
	"net/http"

	"github.com/dropDatabas3/authbridge/internal/metrics"
	"github.com/dropDatabas3/authbridge/internal/session"
)

// StateSource entrega el snapshot de sesión vigente.
type StateSource interface {
	State() session.AuthState
}

// Gate protege un subárbol de rutas como función pura del snapshot:
// cargando → 503 con Retry-After; sin sesión → redirect al entry point de
// login; autenticado → sigue. Sin timers ni efectos propios.
func Gate(src StateSource, loginPath string) func(http.Handler) http.Handler {
	if loginPath == "" {
		loginPath = "/login"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := src.State()
			switch {
			case st.Loading:
				metrics.RecordGateOutcome("loading")
				w.Header().Set("Retry-After", "1")
				WriteError(w, http.StatusServiceUnavailable, "initializing", "sesión inicializando")
			case !st.Authenticated():
				metrics.RecordGateOutcome("redirect")
				http.Redirect(w, r, loginPath, http.StatusFound)
			default:
				metrics.RecordGateOutcome("pass")
				next.ServeHTTP(w, r)
			}
		})
	}
}
