package accounts

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/authbridge/internal/cache"
	"github.com/dropDatabas3/authbridge/internal/provider"
	"github.com/dropDatabas3/authbridge/internal/security/secretbox"
	"github.com/dropDatabas3/authbridge/internal/token"
)

func newStore(t *testing.T, sealed bool) *Store {
	t.Helper()
	c := cache.NewMemory(cache.Config{})
	var box *secretbox.Box
	if sealed {
		raw := make([]byte, 32)
		for i := range raw {
			raw[i] = byte(i)
		}
		var err error
		box, err = secretbox.New(base64.StdEncoding.EncodeToString(raw))
		if err != nil {
			t.Fatal(err)
		}
	}
	return New(c, box, time.Hour)
}

func TestAccountRoundTrip(t *testing.T) {
	for _, sealed := range []bool{false, true} {
		s := newStore(t, sealed)
		ctx := context.Background()

		rec := Record{
			Provider: provider.Microsoft,
			Account: token.Account{
				Subject:      "sub-1",
				Username:     "u@corp.example",
				Name:         "U Corp",
				RefreshToken: "rt-secret",
			},
		}
		if err := s.SaveAccount(ctx, rec); err != nil {
			t.Fatalf("save (sealed=%v): %v", sealed, err)
		}
		got, err := s.LoadAccount(ctx)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got == nil || got.Account.RefreshToken != "rt-secret" || got.Provider != provider.Microsoft {
			t.Fatalf("got %+v", got)
		}

		if err := s.ClearAccount(ctx); err != nil {
			t.Fatal(err)
		}
		got, err = s.LoadAccount(ctx)
		if err != nil || got != nil {
			t.Fatalf("after clear: rec=%+v err=%v", got, err)
		}
	}
}

func TestSealedAccountIsNotPlaintext(t *testing.T) {
	c := cache.NewMemory(cache.Config{})
	raw := make([]byte, 32)
	box, err := secretbox.New(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatal(err)
	}
	s := New(c, box, time.Hour)
	ctx := context.Background()

	if err := s.SaveAccount(ctx, Record{Provider: provider.Microsoft, Account: token.Account{Subject: "x", RefreshToken: "super-secret-rt"}}); err != nil {
		t.Fatal(err)
	}
	b, err := c.Get(ctx, "auth:account")
	if err != nil {
		t.Fatal(err)
	}
	if len(b) == 0 || strings.Contains(string(b), "super-secret-rt") {
		t.Fatal("refresh token must not be stored in plaintext")
	}
}

func TestRedirectState_ConsumedOnce(t *testing.T) {
	s := newStore(t, true)
	ctx := context.Background()

	if err := s.SaveRedirectState(ctx, "state-1", provider.Microsoft, "verifier-abc"); err != nil {
		t.Fatal(err)
	}
	p, v, ok := s.TakeRedirectState(ctx, "state-1")
	if !ok || p != provider.Microsoft || v != "verifier-abc" {
		t.Fatalf("take: p=%s v=%q ok=%v", p, v, ok)
	}
	if _, _, ok := s.TakeRedirectState(ctx, "state-1"); ok {
		t.Fatal("state must be single-use")
	}
	if _, _, ok := s.TakeRedirectState(ctx, "unknown"); ok {
		t.Fatal("unknown state must not resolve")
	}
}

func TestRedirectResult_DrainedOnce(t *testing.T) {
	s := newStore(t, true)
	ctx := context.Background()

	if rr, err := s.TakeRedirectResult(ctx); err != nil || rr != nil {
		t.Fatalf("empty store: rr=%+v err=%v", rr, err)
	}

	in := RedirectResult{
		Provider:    provider.Microsoft,
		Account:     token.Account{Subject: "s", Username: "u@c"},
		AccessToken: "at",
		Expiry:      time.Now().Add(time.Hour),
	}
	if err := s.SaveRedirectResult(ctx, in); err != nil {
		t.Fatal(err)
	}
	rr, err := s.TakeRedirectResult(ctx)
	if err != nil || rr == nil || rr.AccessToken != "at" {
		t.Fatalf("first drain: rr=%+v err=%v", rr, err)
	}
	rr, err = s.TakeRedirectResult(ctx)
	if err != nil || rr != nil {
		t.Fatalf("second drain must be empty: rr=%+v err=%v", rr, err)
	}
}

func TestLoadAccount_GarbageIsDiscarded(t *testing.T) {
	c := cache.NewMemory(cache.Config{})
	s := New(c, nil, time.Hour)
	ctx := context.Background()

	if err := c.Set(ctx, "auth:account", []byte("{{{not json"), 0); err != nil {
		t.Fatal(err)
	}
	rec, err := s.LoadAccount(ctx)
	if err != nil || rec != nil {
		t.Fatalf("garbage record: rec=%+v err=%v", rec, err)
	}
	// y quedó borrado
	if _, err := c.Get(ctx, "auth:account"); !cache.IsNotFound(err) {
		t.Fatal("garbage record must be deleted")
	}
}
