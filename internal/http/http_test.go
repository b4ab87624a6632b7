package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/authbridge/internal/accounts"
	"github.com/dropDatabas3/authbridge/internal/audit"
	"github.com/dropDatabas3/authbridge/internal/cache"
	"github.com/dropDatabas3/authbridge/internal/config"
	"github.com/dropDatabas3/authbridge/internal/delegated"
	"github.com/dropDatabas3/authbridge/internal/identity"
	"github.com/dropDatabas3/authbridge/internal/provider"
	"github.com/dropDatabas3/authbridge/internal/session"
)

type stubState struct{ st session.AuthState }

func (s stubState) State() session.AuthState { return s.st }

func TestGateWhileLoading(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Gate(stubState{session.AuthState{Loading: true}}, "/login")(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app/panel", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("falta Retry-After")
	}
}

func TestGateUnauthenticatedRedirects(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Gate(stubState{session.AuthState{Status: session.StatusUnauthenticated}}, "/login")(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app/panel", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status: %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Fatalf("Location: %q", loc)
	}
}

func TestGateAuthenticatedPasses(t *testing.T) {
	user := &identity.User{ID: "u1", Email: "u1@example.com", DisplayName: "U1", Provider: provider.Google}
	var hit bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hit = true; w.WriteHeader(http.StatusOK) })
	h := Gate(stubState{session.AuthState{Status: session.StatusAuthenticated, User: user}}, "/login")(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app/panel", nil))
	if rec.Code != http.StatusOK || !hit {
		t.Fatalf("status=%d hit=%v", rec.Code, hit)
	}
}

func newTestRouter(t *testing.T) (http.Handler, *session.Coordinator) {
	t.Helper()
	var cfg config.Config
	cfg.Backend.BaseURL = "http://backend.local"
	cfg.Providers.Google.Enabled = true
	cfg.Providers.Google.ClientID = "gid"

	store := accounts.New(cache.NewMemory(cache.Config{}), nil, time.Hour)
	trail, _ := audit.New(context.Background(), audit.Config{})
	coord := session.New(session.Deps{
		Providers: provider.Resolve(&cfg),
		Store:     store,
		Trail:     trail,
	})
	if err := coord.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	router := NewRouter(RouterDeps{
		Handlers:  &Handlers{Coordinator: coord, LoginPath: "/login"},
		State:     coord,
		LoginPath: "/login",
		Protected: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("secreto"))
		}),
	})
	return router, coord
}

func googleCredential(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return "eyJhbGciOiJSUzI1NiJ9." + base64.RawURLEncoding.EncodeToString(payload) + ".firma"
}

func TestSessionEndpointReportsState(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var reply map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("json: %v", err)
	}
	if reply["authenticated"] != false || reply["status"] != "unauthenticated" {
		t.Fatalf("reply inesperada: %v", reply)
	}
}

func TestCredentialLoginThroughRouter(t *testing.T) {
	router, coord := newTestRouter(t)

	cred := googleCredential(t, map[string]any{"sub": "123", "email": "a@b.com", "name": "A B"})
	body := strings.NewReader(`{"credential":"` + cred + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/credential", body)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body=%s", rec.Code, rec.Body.String())
	}
	if u := coord.State().User; u == nil || u.ID != "123" {
		t.Fatalf("usuario inesperado: %+v", u)
	}

	// con sesión, el subárbol protegido pasa
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app/panel", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "secreto" {
		t.Fatalf("gate no dejó pasar: %d %q", rec.Code, rec.Body.String())
	}
}

func TestLogoutEndpoint(t *testing.T) {
	router, coord := newTestRouter(t)

	cred := googleCredential(t, map[string]any{"sub": "9", "email": "x@y.com"})
	if err := coord.LoginWithCredential(context.Background(), cred); err != nil {
		t.Fatalf("login: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: %d", rec.Code)
	}
	if coord.State().Authenticated() {
		t.Fatal("logout debe limpiar la sesión")
	}

	// sin sesión, el subárbol protegido redirige
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app/panel", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestCredentialRejectsMalformedBody(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/credential", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "rid-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "rid-42" {
		t.Fatalf("X-Request-ID: %q", got)
	}
}

func newLegacyRouter(t *testing.T, hostURL string) http.Handler {
	t.Helper()
	lc, err := delegated.New(hostURL)
	if err != nil {
		t.Fatalf("delegated.New: %v", err)
	}
	_, coord := newTestRouter(t)
	return NewRouter(RouterDeps{
		Handlers:  &Handlers{Coordinator: coord, LoginPath: "/login"},
		State:     coord,
		LoginPath: "/login",
		Legacy:    &LegacyHandlers{Client: lc},
	})
}

func TestLegacyLoginRedirectsToHost(t *testing.T) {
	router := newLegacyRouter(t, "https://host.example")

	req := httptest.NewRequest(http.MethodGet, "/legacy/login/aad?post_login_redirect_uri=/panel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("status: %d", rec.Code)
	}
	want := "https://host.example/.auth/login/aad?post_login_redirect_uri=%2Fpanel"
	if loc := rec.Header().Get("Location"); loc != want {
		t.Fatalf("Location: %q", loc)
	}
}

func TestLegacyMePassthrough(t *testing.T) {
	host := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.auth/me" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"clientPrincipal":{"userId":"u-9","userDetails":"ana@example.com","userRoles":["authenticated"],"identityProvider":"aad"}}`))
	}))
	defer host.Close()

	router := newLegacyRouter(t, host.URL)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/legacy/me", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var reply struct {
		ClientPrincipal *identity.Principal `json:"clientPrincipal"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("json: %v", err)
	}
	if reply.ClientPrincipal == nil || reply.ClientPrincipal.UserID != "u-9" {
		t.Fatalf("principal: %+v", reply.ClientPrincipal)
	}
}

func TestLegacyMeHostCaido(t *testing.T) {
	host := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer host.Close()

	router := newLegacyRouter(t, host.URL)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/legacy/me", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestLegacyLogoutRedirectsToHost(t *testing.T) {
	router := newLegacyRouter(t, "https://host.example")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/legacy/logout", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status: %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://host.example/.auth/logout" {
		t.Fatalf("Location: %q", loc)
	}
}

func TestLegacyAusenteNoMontaRutas(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/legacy/me", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: %d", rec.Code)
	}
}
