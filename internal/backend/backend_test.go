package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dropDatabas3/authbridge/internal/autherr"
	"github.com/dropDatabas3/authbridge/internal/provider"
)

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestValidateSendsBearerAndProvider(t *testing.T) {
	var gotAuth, gotProvider string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/oauth/validate" {
			t.Errorf("path inesperado: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotProvider = body["provider"]
		w.WriteHeader(http.StatusOK)
	})

	if err := c.Validate(context.Background(), "tok-1", provider.Microsoft); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("Authorization inesperado: %q", gotAuth)
	}
	if gotProvider != "microsoft" {
		t.Fatalf("provider inesperado: %q", gotProvider)
	}
}

func TestValidateServerErrorIsValidationClass(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := c.Validate(context.Background(), "tok-1", provider.Google)
	if err == nil {
		t.Fatal("un 500 debe reportarse")
	}
	if !errors.Is(err, autherr.ErrValidation) {
		t.Fatalf("clase inesperada: %v", err)
	}
}

func TestValidateTransportErrorIsValidationClass(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // conexión rechazada
	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Validate(context.Background(), "tok", provider.Microsoft); !errors.Is(err, autherr.ErrValidation) {
		t.Fatalf("clase inesperada: %v", err)
	}
}

func TestLoginPasswordSuccess(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/token" {
			t.Errorf("path inesperado: %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("form: %v", err)
		}
		if r.Form.Get("username") != "ana" || r.Form.Get("password") != "s3creta" {
			t.Errorf("credenciales inesperadas: %v", r.Form)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-trad",
			"token_type":   "bearer",
			"principal": map[string]any{
				"userId":           "u-1",
				"userDetails":      "ana@example.com",
				"userRoles":        []string{"authenticated"},
				"identityProvider": "traditional",
			},
		})
	})

	p, tok, err := c.LoginPassword(context.Background(), "ana", "s3creta")
	if err != nil {
		t.Fatalf("LoginPassword: %v", err)
	}
	if tok != "at-trad" || p.UserID != "u-1" || p.UserDetails != "ana@example.com" {
		t.Fatalf("respuesta inesperada: %+v %q", p, tok)
	}
}

func TestLoginPasswordRejected(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	})

	_, _, err := c.LoginPassword(context.Background(), "ana", "mala")
	if !errors.Is(err, autherr.ErrProvider) {
		t.Fatalf("un 401 es terminal de provider, vino %v", err)
	}
}

func TestLoginPasswordBackendDown(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	_, _, err := c.LoginPassword(context.Background(), "ana", "x")
	if !errors.Is(err, autherr.ErrNetwork) {
		t.Fatalf("un 5xx es de red, vino %v", err)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); !autherr.IsConfiguration(err) {
		t.Fatalf("sin base_url esperaba error de configuración, vino %v", err)
	}
}
