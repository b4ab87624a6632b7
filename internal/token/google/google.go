// Package google verifica credenciales de identidad de Google entregadas
// desde afuera (el botón de identidad del frontend entrega el credential ya
// emitido; acá no hay intercambio de código ni secret).
package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/authbridge/internal/autherr"
	"github.com/dropDatabas3/authbridge/internal/provider"
)

const defaultDiscoveryURL = "https://accounts.google.com/.well-known/openid-configuration"

type discoveryDoc struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

type jwk struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}
type jwks struct {
	Keys []jwk `json:"keys"`
}

// Verifier valida firma, iss y aud de un credential de Google contra el
// JWKS publicado. Cachea discovery (24h) y JWKS (1h, con revalidación ETag).
type Verifier struct {
	clientID     string
	discoveryURL string
	http         *http.Client

	mu    sync.RWMutex
	disc  *discoveryDoc
	discU time.Time

	jwks     *jwks
	jwksAt   time.Time
	jwksETag string
}

// Option ajusta el Verifier (principalmente para tests).
type Option func(*Verifier)

// WithDiscoveryURL apunta a otro discovery doc.
func WithDiscoveryURL(u string) Option {
	return func(v *Verifier) { v.discoveryURL = u }
}

// WithHTTPClient reemplaza el client saliente.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.http = c }
}

func New(clientID string, opts ...Option) *Verifier {
	v := &Verifier{
		clientID:     clientID,
		discoveryURL: defaultDiscoveryURL,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

func (g *Verifier) discovery(ctx context.Context) (*discoveryDoc, error) {
	g.mu.RLock()
	disc := g.disc
	stale := time.Since(g.discU) > 24*time.Hour
	g.mu.RUnlock()
	if disc != nil && !stale {
		return disc, nil
	}
	req, _ := http.NewRequestWithContext(ctx, "GET", g.discoveryURL, nil)
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var dd discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&dd); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.disc = &dd
	g.discU = time.Now()
	g.mu.Unlock()
	return &dd, nil
}

func (g *Verifier) getJWKS(ctx context.Context, uri string) (*jwks, error) {
	g.mu.RLock()
	j := g.jwks
	age := time.Since(g.jwksAt)
	g.mu.RUnlock()
	if j != nil && age < 1*time.Hour {
		return j, nil
	}

	req, _ := http.NewRequestWithContext(ctx, "GET", uri, nil)
	if g.jwksETag != "" {
		req.Header.Set("If-None-Match", g.jwksETag)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		g.mu.Lock()
		out := g.jwks
		g.jwksAt = time.Now()
		g.mu.Unlock()
		return out, nil
	}

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("jwks http %d", resp.StatusCode)
	}
	var jj jwks
	if err := json.NewDecoder(resp.Body).Decode(&jj); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.jwks = &jj
	g.jwksAt = time.Now()
	g.jwksETag = resp.Header.Get("ETag")
	g.mu.Unlock()
	return &jj, nil
}

func (g *Verifier) rsaKeyForKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	disc, err := g.discovery(ctx)
	if err != nil {
		return nil, err
	}
	jwks, err := g.getJWKS(ctx, disc.JWKSURI)
	if err != nil {
		return nil, err
	}
	for _, k := range jwks.Keys {
		if k.Kid == kid && strings.EqualFold(k.Kty, "RSA") {
			nb, err := base64.RawURLEncoding.DecodeString(k.N)
			if err != nil {
				return nil, err
			}
			eb, err := base64.RawURLEncoding.DecodeString(k.E)
			if err != nil {
				return nil, err
			}
			n := new(big.Int).SetBytes(nb)
			var e int
			if len(eb) == 0 {
				e = 65537
			} else {
				// big-endian bytes to int
				e = 0
				for _, b := range eb {
					e = (e << 8) | int(b)
				}
			}
			return &rsa.PublicKey{N: n, E: e}, nil
		}
	}
	return nil, errors.New("kid not found")
}

// Claims son los claims verificados del credential.
type Claims struct {
	Sub           string          `json:"sub"`
	Iss           string          `json:"iss"`
	Email         string          `json:"email"`
	EmailVerified bool            `json:"email_verified"`
	Name          string          `json:"name"`
	GivenName     string          `json:"given_name"`
	FamilyName    string          `json:"family_name"`
	Picture       string          `json:"picture"`
	Hd            string          `json:"hd,omitempty"`
	Raw           jwtv5.MapClaims `json:"-"`
}

// Verify valida firma, iss, aud y expiración del credential. Los errores
// salen clasificados: fallas de red como network, todo lo demás como
// provider (un credential forjado o vencido no tiene reintento silencioso).
func (g *Verifier) Verify(ctx context.Context, credential string) (*Claims, error) {
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	parts := strings.Split(credential, ".")
	if len(parts) != 3 {
		return nil, autherr.Provider(string(provider.Google), "formato de credential inválido", nil)
	}
	hb, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, autherr.Provider(string(provider.Google), "header del credential ilegible", err)
	}
	if err := json.Unmarshal(hb, &header); err != nil {
		return nil, autherr.Provider(string(provider.Google), "header del credential ilegible", err)
	}
	if header.Alg != "RS256" {
		return nil, autherr.Provider(string(provider.Google), fmt.Sprintf("alg inesperado: %s", header.Alg), nil)
	}

	key, err := g.rsaKeyForKid(ctx, header.Kid)
	if err != nil {
		return nil, autherr.Network(string(provider.Google), err)
	}
	tok, err := jwtv5.Parse(credential, func(t *jwtv5.Token) (any, error) { return key, nil }, jwtv5.WithValidMethods([]string{"RS256"}))
	if err != nil || !tok.Valid {
		return nil, autherr.Provider(string(provider.Google), "credential inválido", err)
	}

	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, autherr.Provider(string(provider.Google), "claims ilegibles", nil)
	}

	iss, _ := claims["iss"].(string)
	if !validIssuer(iss, g.issuer()) {
		return nil, autherr.Provider(string(provider.Google), fmt.Sprintf("iss inesperado: %s", iss), nil)
	}

	audOK := false
	switch a := claims["aud"].(type) {
	case string:
		audOK = (a == g.clientID)
	case []any:
		for _, v := range a {
			if s, _ := v.(string); s == g.clientID {
				audOK = true
				break
			}
		}
	}
	if !audOK {
		return nil, autherr.Provider(string(provider.Google), "el credential no fue emitido para esta aplicación", nil)
	}

	if expf, ok := claims["exp"].(float64); ok {
		if time.Unix(int64(expf), 0).Before(time.Now().Add(-30 * time.Second)) {
			return nil, autherr.Provider(string(provider.Google), "credential vencido", nil)
		}
	}

	return &Claims{
		Raw:           claims,
		Sub:           strClaim(claims, "sub"),
		Iss:           iss,
		Email:         strClaim(claims, "email"),
		EmailVerified: boolClaim(claims, "email_verified"),
		Name:          strClaim(claims, "name"),
		GivenName:     strClaim(claims, "given_name"),
		FamilyName:    strClaim(claims, "family_name"),
		Picture:       strClaim(claims, "picture"),
		Hd:            strClaim(claims, "hd"),
	}, nil
}

func (g *Verifier) issuer() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.disc != nil {
		return g.disc.Issuer
	}
	return ""
}

func validIssuer(iss, discovered string) bool {
	if discovered != "" && iss == discovered {
		return true
	}
	return iss == "https://accounts.google.com" || iss == "accounts.google.com"
}

func strClaim(m jwtv5.MapClaims, k string) string {
	s, _ := m[k].(string)
	return s
}
func boolClaim(m jwtv5.MapClaims, k string) bool {
	b, _ := m[k].(bool)
	return b
}
