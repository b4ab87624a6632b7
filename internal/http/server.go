package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/authbridge/internal/metrics"
	"github.com/dropDatabas3/authbridge/internal/rate"
)

// RouterDeps agrupa lo que el router necesita.
type RouterDeps struct {
	Handlers           *Handlers
	State              StateSource
	LoginPath          string
	CORSAllowedOrigins []string
	Metrics            http.Handler
	// Protected se monta en /app/* detrás del gate de sesión.
	Protected http.Handler
	// LoginThrottle acota intentos en los endpoints de login. Opcional.
	LoginThrottle rate.Limiter
	// Legacy monta los endpoints de compatibilidad /.auth. DEPRECATED.
	Legacy *LegacyHandlers
}

// NewRouter arma el árbol de rutas del bridge con la cadena de middlewares
// estándar.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(WithRecover)
	r.Use(WithRequestID)
	r.Use(WithSecurityHeaders)
	r.Use(WithCORS(d.CORSAllowedOrigins))
	r.Use(metrics.WithHTTP)
	r.Use(WithLogging)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	h := d.Handlers
	r.Get("/session", h.Session)
	r.Get("/auth/callback", h.Callback)
	r.Post("/logout", h.Logout)

	r.Group(func(sub chi.Router) {
		if d.LoginThrottle != nil {
			sub.Use(WithThrottle(d.LoginThrottle))
		}
		sub.Get("/login/{provider}", h.LoginRedirect)
		sub.Post("/login/{provider}", h.LoginPopup)
		sub.Post("/auth/credential", h.Credential)
		sub.Post("/auth/password", h.Password)
	})

	if d.Legacy != nil {
		r.Route("/legacy", func(sub chi.Router) {
			sub.Get("/login/{provider}", d.Legacy.Login)
			sub.Get("/me", d.Legacy.Me)
			sub.Get("/logout", d.Legacy.Logout)
		})
	}

	if d.Protected != nil {
		r.Route("/app", func(sub chi.Router) {
			sub.Use(Gate(d.State, d.LoginPath))
			sub.Handle("/*", d.Protected)
		})
	}

	return r
}

// Server envuelve el http.Server con apagado ordenado.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
