// Package microsoft implementa la adquisición de tokens contra el
// directorio empresarial (authorization code + PKCE, cliente público).
//
// El cliente se construye explícitamente y se inyecta en el coordinador;
// no hay instancia global de módulo.
package microsoft

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/dropDatabas3/authbridge/internal/accounts"
	"github.com/dropDatabas3/authbridge/internal/autherr"
	"github.com/dropDatabas3/authbridge/internal/observability/logger"
	"github.com/dropDatabas3/authbridge/internal/provider"
	"github.com/dropDatabas3/authbridge/internal/token"
)

// PromptFunc presenta el surface interactivo (popup) al usuario: recibe la
// URL de autorización y la hace llegar al navegador. El resultado vuelve
// después por Redeem/Cancel desde el callback HTTP.
type PromptFunc func(ctx context.Context, authURL string) error

// Options ajusta el comportamiento del cliente.
type Options struct {
	// Prompt presenta el intento interactivo. Sin Prompt, AcquireInteractive
	// falla como no disponible (solo queda el flujo de redirect).
	Prompt PromptFunc

	// InteractiveTimeout acota la espera por el usuario en un popup.
	// Default: 5m.
	InteractiveTimeout time.Duration

	// HTTPClient para discovery e intercambios. Default: client con
	// timeout de 10s, como el resto de los clientes salientes.
	HTTPClient *http.Client
}

type outcome struct {
	res *token.Result
	err error
}

type attempt struct {
	verifier string
	ch       chan outcome
}

// Client adquiere tokens del directorio. Implementa token.Acquirer.
type Client struct {
	cfg      provider.RuntimeConfig
	store    *accounts.Store
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	endSess  string
	prompt   PromptFunc
	timeout  time.Duration
	httpc    *http.Client

	mu      sync.Mutex
	pending map[string]*attempt
}

// directoryClaims son los claims del id_token que alimentan la cuenta.
type directoryClaims struct {
	Sub               string `json:"sub"`
	Oid               string `json:"oid"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
}

// discoveryClaims extrae del discovery doc lo que go-oidc no expone.
type discoveryClaims struct {
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

// New descubre la authority y arma el cliente OAuth público (sin secret:
// el client secret del backend jamás llega a esta capa).
func New(ctx context.Context, rc provider.RuntimeConfig, store *accounts.Store, opts Options) (*Client, error) {
	if !rc.Enabled {
		return nil, autherr.Configuration(string(provider.Microsoft), "provider no configurado")
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	ctx = oidc.ClientContext(ctx, httpc)

	p, err := oidc.NewProvider(ctx, rc.Authority)
	if err != nil {
		return nil, fmt.Errorf("microsoft: discovery de %s: %w", rc.Authority, err)
	}

	var disc discoveryClaims
	_ = p.Claims(&disc)

	scopes := append([]string{oidc.ScopeOpenID, "profile", "email", "offline_access"}, rc.Scopes...)
	scopes = dedup(scopes)

	timeout := opts.InteractiveTimeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	return &Client{
		cfg:   rc,
		store: store,
		oauth: &oauth2.Config{
			ClientID:    rc.ClientID,
			Endpoint:    p.Endpoint(),
			RedirectURL: rc.RedirectURI,
			Scopes:      scopes,
		},
		verifier: p.Verifier(&oidc.Config{ClientID: rc.ClientID}),
		endSess:  disc.EndSessionEndpoint,
		prompt:   opts.Prompt,
		timeout:  timeout,
		httpc:    httpc,
		pending:  make(map[string]*attempt),
	}, nil
}

func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// BeginRedirect inicia el flujo de página completa. El verifier PKCE se
// persiste keyed por state para que el intercambio sea posible después del
// reload. Nunca devuelve un token.
func (c *Client) BeginRedirect(ctx context.Context) (string, error) {
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	if err := c.store.SaveRedirectState(ctx, state, provider.Microsoft, verifier); err != nil {
		return "", fmt.Errorf("microsoft: persistir state de redirect: %w", err)
	}
	return c.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// CompleteRedirect drena el resultado persistido de un redirect completado.
// (nil, nil) cuando no hay ninguno pendiente.
func (c *Client) CompleteRedirect(ctx context.Context) (*token.Result, error) {
	rr, err := c.store.TakeRedirectResult(ctx)
	if err != nil {
		return nil, err
	}
	if rr == nil || rr.Provider != provider.Microsoft {
		return nil, nil
	}
	return &token.Result{
		Account:     rr.Account,
		AccessToken: rr.AccessToken,
		Expiry:      rr.Expiry,
	}, nil
}

// AcquireInteractive abre el surface modal: registra el intento, presenta
// la URL via Prompt y bloquea hasta que el callback lo resuelva, el usuario
// lo descarte o venza el timeout. El descarte resuelve como rechazo, nunca
// como cuelgue.
func (c *Client) AcquireInteractive(ctx context.Context) (*token.Result, error) {
	if c.prompt == nil {
		return nil, autherr.Provider(string(provider.Microsoft), "no hay surface interactivo disponible", nil)
	}

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	att := &attempt{verifier: verifier, ch: make(chan outcome, 1)}

	c.mu.Lock()
	c.pending[state] = att
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, state)
		c.mu.Unlock()
	}()

	authURL := c.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	if err := c.prompt(ctx, authURL); err != nil {
		return nil, autherr.Provider(string(provider.Microsoft), "no se pudo presentar el login", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case out := <-att.ch:
		return out.res, out.err
	case <-ctx.Done():
		return nil, autherr.Provider(string(provider.Microsoft), "intento interactivo cancelado", ctx.Err())
	case <-timer.C:
		return nil, autherr.Provider(string(provider.Microsoft), "el usuario cerró el login sin completarlo", nil)
	}
}

// AcquireSilent renueva con el refresh token cacheado, sin interacción.
// Sin refresh token no hay nada silencioso que intentar: eso es la clase
// recuperable que habilita la única escalación interactiva.
func (c *Client) AcquireSilent(ctx context.Context, acct token.Account) (*token.Result, error) {
	if acct.RefreshToken == "" {
		return nil, autherr.InteractionRequired(string(provider.Microsoft), errors.New("sin refresh token cacheado"))
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpc)
	ts := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: acct.RefreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, token.Classify(string(provider.Microsoft), err)
	}

	out := &token.Result{
		Account:     acct,
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
	}
	if tok.RefreshToken != "" {
		// rotación de refresh token
		out.Account.RefreshToken = tok.RefreshToken
	}
	return out, nil
}

// Redeem intercambia el código recibido en el callback. Si el state
// corresponde a un intento interactivo en vuelo, el resultado se entrega a
// ese intento; si corresponde a un redirect persistido, el resultado queda
// guardado para que CompleteRedirect lo drene. delivered indica el primer
// caso.
func (c *Client) Redeem(ctx context.Context, state, code string) (res *token.Result, delivered bool, err error) {
	c.mu.Lock()
	att, ok := c.pending[state]
	c.mu.Unlock()

	if ok {
		res, err = c.exchange(ctx, code, att.verifier)
		att.ch <- outcome{res: res, err: err}
		return res, true, err
	}

	p, verifier, ok := c.store.TakeRedirectState(ctx, state)
	if !ok || p != provider.Microsoft {
		return nil, false, autherr.Provider(string(provider.Microsoft), "state desconocido o ya consumido", nil)
	}
	res, err = c.exchange(ctx, code, verifier)
	if err != nil {
		return nil, false, err
	}
	if err := c.store.SaveRedirectResult(ctx, accounts.RedirectResult{
		Provider:    provider.Microsoft,
		Account:     res.Account,
		AccessToken: res.AccessToken,
		Expiry:      res.Expiry,
	}); err != nil {
		return nil, false, fmt.Errorf("microsoft: persistir resultado de redirect: %w", err)
	}
	return res, false, nil
}

// Cancel resuelve un intento interactivo en vuelo como rechazado por el
// usuario (popup cerrado, error del IDP en el callback).
func (c *Client) Cancel(state, reason string) {
	c.mu.Lock()
	att, ok := c.pending[state]
	c.mu.Unlock()
	if !ok {
		return
	}
	if reason == "" {
		reason = "cancelado por el usuario"
	}
	att.ch <- outcome{err: autherr.Provider(string(provider.Microsoft), reason, nil)}
}

func (c *Client) exchange(ctx context.Context, code, verifier string) (*token.Result, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpc)
	tok, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, token.Classify(string(provider.Microsoft), err)
	}

	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		return nil, autherr.Provider(string(provider.Microsoft), "la respuesta no trae id_token", nil)
	}
	idTok, err := c.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, autherr.Provider(string(provider.Microsoft), "id_token inválido", err)
	}
	var claims directoryClaims
	if err := idTok.Claims(&claims); err != nil {
		return nil, autherr.Provider(string(provider.Microsoft), "claims del id_token ilegibles", err)
	}

	subject := claims.Oid
	if subject == "" {
		subject = claims.Sub
	}
	return &token.Result{
		Account: token.Account{
			Subject:      subject,
			Username:     claims.PreferredUsername,
			Name:         claims.Name,
			RefreshToken: tok.RefreshToken,
		},
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
	}, nil
}

// SignOut es best effort: presenta el end_session_endpoint si hay surface;
// la limpieza local ya la hizo el coordinador antes de llamar acá.
func (c *Client) SignOut(ctx context.Context) error {
	if c.endSess == "" || c.prompt == nil {
		return nil
	}
	if err := c.prompt(ctx, c.endSess); err != nil {
		logger.From(ctx).Debug("sign-out del provider no presentado", logger.Err(err))
	}
	return nil
}

var _ token.Acquirer = (*Client)(nil)
