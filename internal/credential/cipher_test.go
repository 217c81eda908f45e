package credential

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func newTestCipher(t *testing.T, secret string) *Cipher {
	t.Helper()
	c, err := NewCipher(secret)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return c
}

func TestNewCipher_EmptySecret(t *testing.T) {
	if _, err := NewCipher(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t, "correct-horse-battery-staple")
	ct, err := c.Encrypt("user-1", "sk-or-v1-abcdef0123456789")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !strings.HasPrefix(ct, "v1:") {
		t.Errorf("ciphertext %q missing version prefix", ct)
	}
	if strings.Contains(ct, "abcdef0123456789") {
		t.Error("ciphertext contains plaintext")
	}
	pt, err := c.Decrypt("user-1", ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if pt != "sk-or-v1-abcdef0123456789" {
		t.Errorf("Decrypt = %q", pt)
	}
}

func TestCipher_NonceIsRandom(t *testing.T) {
	c := newTestCipher(t, "secret")
	a, _ := c.Encrypt("u", "same key")
	b, _ := c.Encrypt("u", "same key")
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertexts")
	}
}

func TestCipher_DecryptFailures(t *testing.T) {
	c := newTestCipher(t, "secret")
	good, err := c.Encrypt("user-1", "sk-test-key-123456")
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(good, "v1:"))
	raw[len(raw)-1] ^= 0xff
	tampered := "v1:" + base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name   string
		cipher *Cipher
		userID string
		input  string
	}{
		{"empty", c, "user-1", ""},
		{"no version", c, "user-1", strings.TrimPrefix(good, "v1:")},
		{"unknown version", c, "user-1", "v9:" + strings.TrimPrefix(good, "v1:")},
		{"legacy hex format", c, "user-1", "00112233445566778899aabbccddeeff:deadbeef"},
		{"bad base64", c, "user-1", "v1:!!!not-base64!!!"},
		{"too short", c, "user-1", "v1:" + base64.StdEncoding.EncodeToString([]byte("short"))},
		{"tampered", c, "user-1", tampered},
		{"other user", c, "user-2", good},
		{"other secret", newTestCipher(t, "different"), "user-1", good},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cipher.Decrypt(tt.userID, tt.input)
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("Decrypt err = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "***"},
		{"short", "***"},
		{"12345678", "***"},
		{"123456789", "1234...6789"},
		{"sk-or-v1-abcdefghijklmnop", "sk-o...mnop"},
	}
	for _, tt := range tests {
		if got := Mask(tt.key); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
