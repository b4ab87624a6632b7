package identity

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/dropDatabas3/authbridge/internal/provider"
)

func signedToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	body, err := json.Marshal(claims)
	if err != nil {
		t.Fatal(err)
	}
	payload := base64.RawURLEncoding.EncodeToString(body)
	return header + "." + payload + ".fakesig"
}

func TestFromIdentityToken_MapsClaims(t *testing.T) {
	raw := signedToken(t, map[string]any{
		"sub":     "123",
		"email":   "a@b.com",
		"name":    "A B",
		"picture": "https://example.com/p.png",
	})

	u, err := FromIdentityToken(raw)
	if err != nil {
		t.Fatalf("FromIdentityToken err: %v", err)
	}
	if u.ID != "123" || u.Email != "a@b.com" || u.DisplayName != "A B" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.Provider != provider.Google {
		t.Fatalf("provider = %s, want google", u.Provider)
	}
	if u.AccessToken != raw {
		t.Fatal("access token must be the raw credential string")
	}
	if u.ProfilePictureURL != "https://example.com/p.png" {
		t.Fatalf("picture = %q", u.ProfilePictureURL)
	}
}

func TestFromIdentityToken_NameFallsBackToEmail(t *testing.T) {
	raw := signedToken(t, map[string]any{"sub": "9", "email": "x@y.z"})
	u, err := FromIdentityToken(raw)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if u.DisplayName != "x@y.z" {
		t.Fatalf("displayName = %q, want email fallback", u.DisplayName)
	}
}

func TestFromIdentityToken_Malformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"two_segments", "aaa.bbb"},
		{"four_segments", "a.b.c.d"},
		{"bad_base64", "h." + "!!!not-base64!!!" + ".s"},
		{"bad_json", "h." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".s"},
		{"missing_sub", signedTokenHelper(`{"email":"a@b.com"}`)},
		{"missing_email", signedTokenHelper(`{"sub":"1"}`)},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromIdentityToken(tc.raw); err == nil {
				t.Fatalf("expected normalization failure for %q", tc.raw)
			}
		})
	}
}

func signedTokenHelper(payload string) string {
	h := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	p := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return h + "." + p + ".s"
}

func TestFromDirectoryAccount(t *testing.T) {
	u, err := FromDirectoryAccount(DirectoryAccount{
		LocalID:  "local-1",
		Username: "user@corp.example",
		Name:     "User Corp",
	}, "tok-abc")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if u.ID != "local-1" || u.Email != "user@corp.example" || u.DisplayName != "User Corp" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.Provider != provider.Microsoft {
		t.Fatalf("provider = %s", u.Provider)
	}

	// name ausente => cae al username
	u2, err := FromDirectoryAccount(DirectoryAccount{LocalID: "l", Username: "u@c"}, "tok")
	if err != nil {
		t.Fatal(err)
	}
	if u2.DisplayName != "u@c" {
		t.Fatalf("displayName = %q, want username fallback", u2.DisplayName)
	}
}

func TestFromDirectoryAccount_Incomplete(t *testing.T) {
	if _, err := FromDirectoryAccount(DirectoryAccount{Username: "u"}, "t"); err == nil {
		t.Fatal("missing local id must fail")
	}
	if _, err := FromDirectoryAccount(DirectoryAccount{LocalID: "l", Username: "u"}, ""); err == nil {
		t.Fatal("missing token must fail")
	}
}

func TestFromPrincipal(t *testing.T) {
	u, err := FromPrincipal(Principal{
		UserID:           "42",
		UserDetails:      "op@cardea.local",
		Roles:            []string{"user"},
		IdentityProvider: "traditional",
	}, "jwt-token")
	if err != nil {
		t.Fatal(err)
	}
	if u.Provider != provider.Traditional || u.ID != "42" {
		t.Fatalf("unexpected user: %+v", u)
	}
}
