package credential

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	cipherVersion = "v1"
	kdfInfo       = "megazord credential encryption v1"
)

// ErrCorrupt is returned when a stored ciphertext cannot be decoded or fails
// authentication.
var ErrCorrupt = errors.New("credential: corrupt ciphertext")

// Cipher seals provider keys with XChaCha20-Poly1305. The owning user ID is
// bound as associated data, so a ciphertext copied to another user's row
// does not open.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a 256-bit key from secret with HKDF-SHA256.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, fmt.Errorf("credential: encryption secret is empty")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(kdfInfo)), key); err != nil {
		return nil, fmt.Errorf("credential: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("credential: init cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt returns "v1:" followed by base64(nonce || sealed).
func (c *Cipher) Encrypt(userID, plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("credential: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(userID))
	return cipherVersion + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed or tampered input yields ErrCorrupt.
func (c *Cipher) Decrypt(userID, ciphertext string) (string, error) {
	version, payload, ok := strings.Cut(ciphertext, ":")
	if !ok || version != cipherVersion {
		return "", ErrCorrupt
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", ErrCorrupt
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, []byte(userID))
	if err != nil {
		return "", ErrCorrupt
	}
	return string(plain), nil
}

// Mask hides all but the first and last four characters of key.
func Mask(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
