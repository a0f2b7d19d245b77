package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

var (
	ErrKeySize    = errors.New("AES-256 requires 32 bytes key")
	ErrCiphertext = errors.New("ciphertext too short")
)

// Cipher seals and opens message bodies with AES-256-GCM. The key is loaded
// once at startup and the Cipher is read-only afterwards, so it is safe for
// concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

func New(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// NewFromBase64 builds a Cipher from a base64-encoded 32-byte key, the format
// used in configuration.
func NewFromBase64(encoded string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return New(key)
}

func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := c.aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ct...), nil
}

func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return nil, ErrCiphertext
	}
	return c.aead.Open(nil, data[:ns], data[ns:], nil)
}

// EncryptString returns base64(nonce||ciphertext), the at-rest body format.
func (c *Cipher) EncryptString(plain string) (string, error) {
	b, err := c.Encrypt([]byte(plain))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (c *Cipher) DecryptString(encoded string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	plain, err := c.Decrypt(b)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
