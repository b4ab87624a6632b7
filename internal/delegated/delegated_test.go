package delegated

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoginAndLogoutURLs(t *testing.T) {
	c, err := New("https://host.example/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := c.LoginURL("aad", "https://app.example/volver")
	want := "https://host.example/.auth/login/aad?post_login_redirect_uri=https%3A%2F%2Fapp.example%2Fvolver"
	if got != want {
		t.Fatalf("LoginURL:\n got %s\nwant %s", got, want)
	}

	got = c.LogoutURL("")
	if got != "https://host.example/.auth/logout" {
		t.Fatalf("LogoutURL: %s", got)
	}
}

func TestMeWithPrincipal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.auth/me" {
			t.Errorf("path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"clientPrincipal":{"userId":"u1","userDetails":"u1@example.com","userRoles":["authenticated"],"identityProvider":"aad"}}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	p, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if p == nil || p.UserID != "u1" || p.IdentityProvider != "aad" {
		t.Fatalf("principal inesperado: %+v", p)
	}
	if len(p.Roles) != 1 || p.Roles[0] != "authenticated" {
		t.Fatalf("roles inesperados: %+v", p.Roles)
	}
}

func TestMeWithoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"clientPrincipal":null}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	p, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if p != nil {
		t.Fatalf("sin sesión el principal es nil: %+v", p)
	}
}
