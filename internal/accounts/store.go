// Package accounts persiste el estado de cuenta del provider activo y el
// resultado de redirect pendiente. Es la única memoria que sobrevive al
// reload de un flujo de redirect, por eso el coordinador la drena al
// arrancar antes de cualquier otra operación.
package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/authbridge/internal/cache"
	"github.com/dropDatabas3/authbridge/internal/provider"
	"github.com/dropDatabas3/authbridge/internal/security/secretbox"
	"github.com/dropDatabas3/authbridge/internal/token"
)

const (
	keyAccount        = "auth:account"
	keyRedirectResult = "auth:redirect:result"
	keyRedirectState  = "auth:redirect:state:" // + state

	// redirectStateTTL acota cuánto puede tardar el usuario en el surface
	// de login del provider antes de que el state se considere abandonado.
	redirectStateTTL = 10 * time.Minute
)

// Record es la cuenta activa persistida: hay exactamente una por proceso.
type Record struct {
	Provider provider.Identity `json:"provider"`
	Account  token.Account     `json:"account"`
}

// RedirectResult es el resultado de un redirect completado, pendiente de
// ser drenado por el coordinador en el próximo arranque.
type RedirectResult struct {
	Provider    provider.Identity `json:"provider"`
	Account     token.Account     `json:"account"`
	AccessToken string            `json:"access_token"`
	Expiry      time.Time         `json:"expiry"`
}

// Store sella los registros en reposo con la clave maestra del proceso.
type Store struct {
	cache cache.Client
	box   *secretbox.Box
	ttl   time.Duration
}

// New crea el almacén. box puede ser nil: en ese caso los registros se
// guardan en claro (aceptable solo en dev; cmd exige la clave en prod).
func New(c cache.Client, box *secretbox.Box, accountTTL time.Duration) *Store {
	return &Store{cache: c, box: box, ttl: accountTTL}
}

func (s *Store) seal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if s.box == nil {
		return b, nil
	}
	sealed, err := s.box.Seal(b)
	if err != nil {
		return nil, err
	}
	return []byte(sealed), nil
}

func (s *Store) open(b []byte, v any) error {
	if s.box != nil {
		pt, err := s.box.Open(string(b))
		if err != nil {
			return err
		}
		b = pt
	}
	return json.Unmarshal(b, v)
}

// SaveAccount persiste la cuenta activa del proceso.
func (s *Store) SaveAccount(ctx context.Context, rec Record) error {
	b, err := s.seal(rec)
	if err != nil {
		return fmt.Errorf("accounts: seal account: %w", err)
	}
	return s.cache.Set(ctx, keyAccount, b, s.ttl)
}

// LoadAccount devuelve la cuenta activa, o (nil, nil) si no hay ninguna.
func (s *Store) LoadAccount(ctx context.Context) (*Record, error) {
	b, err := s.cache.Get(ctx, keyAccount)
	if cache.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := s.open(b, &rec); err != nil {
		// un registro que no abre es basura: mejor descartarlo que fallar
		// cada arranque
		_ = s.cache.Delete(ctx, keyAccount)
		return nil, nil
	}
	return &rec, nil
}

// ClearAccount elimina la cuenta activa.
func (s *Store) ClearAccount(ctx context.Context) error {
	return s.cache.Delete(ctx, keyAccount)
}

// redirectState es el material efímero de un redirect en vuelo.
type redirectState struct {
	Provider provider.Identity `json:"provider"`
	Verifier string            `json:"verifier"`
}

// SaveRedirectState guarda el verifier PKCE de un redirect iniciado,
// keyed por state. Sobrevive al reload del navegador.
func (s *Store) SaveRedirectState(ctx context.Context, state string, p provider.Identity, verifier string) error {
	b, err := s.seal(redirectState{Provider: p, Verifier: verifier})
	if err != nil {
		return fmt.Errorf("accounts: seal redirect state: %w", err)
	}
	return s.cache.Set(ctx, keyRedirectState+state, b, redirectStateTTL)
}

// TakeRedirectState consume (get+delete) el verifier de un state. Un state
// desconocido o ya consumido devuelve ok=false.
func (s *Store) TakeRedirectState(ctx context.Context, state string) (provider.Identity, string, bool) {
	b, err := s.cache.Get(ctx, keyRedirectState+state)
	if err != nil {
		return provider.None, "", false
	}
	_ = s.cache.Delete(ctx, keyRedirectState+state)
	var rs redirectState
	if err := s.open(b, &rs); err != nil {
		return provider.None, "", false
	}
	return rs.Provider, rs.Verifier, true
}

// SaveRedirectResult persiste el resultado de un redirect completado para
// que el próximo arranque lo drene.
func (s *Store) SaveRedirectResult(ctx context.Context, rr RedirectResult) error {
	b, err := s.seal(rr)
	if err != nil {
		return fmt.Errorf("accounts: seal redirect result: %w", err)
	}
	return s.cache.Set(ctx, keyRedirectResult, b, redirectStateTTL)
}

// TakeRedirectResult consume el resultado pendiente. (nil, nil) cuando no
// hay ninguno: el drenado es exactamente-una-vez.
func (s *Store) TakeRedirectResult(ctx context.Context) (*RedirectResult, error) {
	b, err := s.cache.Get(ctx, keyRedirectResult)
	if cache.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = s.cache.Delete(ctx, keyRedirectResult)
	var rr RedirectResult
	if err := s.open(b, &rr); err != nil {
		return nil, nil
	}
	return &rr, nil
}
