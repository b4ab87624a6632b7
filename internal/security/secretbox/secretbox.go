// Package secretbox sella en reposo los registros de cuenta persistidos.
//
// Formato del texto cifrado: base64(nonce) + "|" + base64(ciphertext),
// con AEAD ChaCha20-Poly1305 y clave maestra de 32 bytes.
package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// EnvMasterKey es la variable de entorno con la clave maestra (base64).
	EnvMasterKey = "SECRETBOX_MASTER_KEY"

	requiredKeyLength = 32  // 32 bytes => ChaCha20-Poly1305
	sep               = "|" // nonce|ciphertext (ambos en base64)
)

var errKeyMissing = errors.New("secretbox: clave maestra no configurada")

// Box sella y abre secretos con una clave maestra fija.
// Se construye explícitamente e inyecta donde haga falta; no hay estado global.
type Box struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// New crea un Box desde una clave en base64 (estándar o raw).
func New(keyB64 string) (*Box, error) {
	keyB64 = strings.TrimSpace(keyB64)
	if keyB64 == "" {
		return nil, errKeyMissing
	}
	k, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		if k2, err2 := base64.RawStdEncoding.DecodeString(keyB64); err2 == nil {
			k = k2
		} else {
			return nil, fmt.Errorf("secretbox: decode clave: %w", err)
		}
	}
	if len(k) != requiredKeyLength {
		return nil, fmt.Errorf("secretbox: la clave debe decodificar a %d bytes, obtuvo %d", requiredKeyLength, len(k))
	}
	aead, err := chacha20poly1305.New(k)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	return &Box{aead: aead}, nil
}

// NewFromEnv crea un Box leyendo SECRETBOX_MASTER_KEY.
// Genere una clave con: openssl rand -base64 32
func NewFromEnv() (*Box, error) {
	return New(os.Getenv(EnvMasterKey))
}

// Seal cifra plain y devuelve base64(nonce)|base64(ciphertext).
func (b *Box) Seal(plain []byte) (string, error) {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: nonce random: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Open descifra un valor producido por Seal. Detecta tampering.
func (b *Box) Open(sealed string) ([]byte, error) {
	parts := strings.SplitN(sealed, sep, 2)
	if len(parts) != 2 {
		return nil, errors.New("secretbox: formato inválido")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode nonce: %w", err)
	}
	if len(nonce) != chacha20poly1305.NonceSize {
		return nil, errors.New("secretbox: nonce de tamaño inválido")
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode ciphertext: %w", err)
	}
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("secretbox: open: %w", err)
	}
	return pt, nil
}
