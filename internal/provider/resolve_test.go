package provider

import (
	"testing"

	"github.com/dropDatabas3/authbridge/internal/config"
)

func baseConfig() *config.Config {
	c := &config.Config{}
	c.Backend.BaseURL = "http://localhost:8000"

	c.Providers.Microsoft.Enabled = true
	c.Providers.Microsoft.ClientID = "11111111-2222-3333-4444-555555555555"
	c.Providers.Microsoft.TenantID = "66666666-7777-8888-9999-000000000000"
	c.Providers.Microsoft.RedirectURI = "http://localhost:8080/auth/callback"
	c.Providers.Microsoft.Scopes = []string{"openid", "profile"}

	c.Providers.Google.Enabled = true
	c.Providers.Google.ClientID = "abc123.apps.googleusercontent.com"

	c.Providers.Traditional.Enabled = true
	return c
}

func TestResolve_AllConfigured(t *testing.T) {
	s := Resolve(baseConfig())

	for _, p := range []Identity{Microsoft, Google, Traditional} {
		if !s.IsEnabled(p) {
			rc, _ := s.Get(p)
			t.Fatalf("%s should be enabled, missing=%v", p, rc.Missing)
		}
	}
}

func TestResolve_PlaceholderDisablesProvider(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"paste_your", "PASTE_YOUR_CLIENT_ID_HERE"},
		{"your_prefix", "YOUR_CLIENT_ID"},
		{"changeme", "changeme"},
		{"angle_brackets", "<client-id>"},
		{"empty", ""},
		{"whitespace", "   "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := baseConfig()
			c.Providers.Google.ClientID = tc.value
			s := Resolve(c)

			if s.IsEnabled(Google) {
				t.Fatalf("google should be disabled with client_id=%q", tc.value)
			}
			rc, _ := s.Get(Google)
			if len(rc.Missing) != 1 || rc.Missing[0] != "client_id" {
				t.Fatalf("missing list = %v, want [client_id]", rc.Missing)
			}
		})
	}
}

func TestResolve_MissingFieldsAreNamed(t *testing.T) {
	c := baseConfig()
	c.Providers.Microsoft.ClientID = ""
	c.Providers.Microsoft.TenantID = "PASTE_YOUR_TENANT_ID"
	s := Resolve(c)

	if s.IsEnabled(Microsoft) {
		t.Fatal("microsoft should be disabled")
	}
	rc, _ := s.Get(Microsoft)
	want := map[string]bool{"client_id": true, "tenant_id": true}
	if len(rc.Missing) != 2 {
		t.Fatalf("missing = %v, want exactly client_id and tenant_id", rc.Missing)
	}
	for _, m := range rc.Missing {
		if !want[m] {
			t.Fatalf("unexpected missing field %q", m)
		}
	}
}

func TestResolve_ToggleOffDisablesEvenWhenConfigured(t *testing.T) {
	c := baseConfig()
	c.Providers.Microsoft.Enabled = false
	s := Resolve(c)

	if s.IsEnabled(Microsoft) {
		t.Fatal("toggle off must win over valid credentials")
	}
	rc, _ := s.Get(Microsoft)
	if len(rc.Missing) != 0 {
		t.Fatalf("toggle off should not report missing fields, got %v", rc.Missing)
	}
}

func TestParse(t *testing.T) {
	if Parse("microsoft") != Microsoft || Parse("google") != Google || Parse("traditional") != Traditional {
		t.Fatal("known tags must round-trip")
	}
	if Parse("facebook") != None || Parse("") != None {
		t.Fatal("unknown tags must map to None")
	}
	if None.Valid() {
		t.Fatal("None is not a real provider")
	}
}
