package storage

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the only accepted length for encryption keys besides zero.
const KeySize = 64

var (
	ErrInvalidKey    = fmt.Errorf("encryption key must be %d bytes", KeySize)
	ErrDecryptFailed = errors.New("decryption failed: wrong key or corrupted record")
)

var hkdfInfo = []byte("realmdb storage v1")

// Cipher seals every persisted record with XChaCha20-Poly1305 using a key
// derived from the user key with HKDF-SHA256.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	derived := make([]byte, chacha20poly1305.KeySize)
	_, err := io.ReadFull(hkdf.New(sha256.New, key, nil, hkdfInfo), derived)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, err
	}

	return &Cipher{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext) so records stay line oriented.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

func (c *Cipher) Open(record []byte) ([]byte, error) {
	sealed := make([]byte, base64.StdEncoding.DecodedLen(len(record)))
	n, err := base64.StdEncoding.Decode(sealed, record)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	sealed = sealed[:n]

	if len(sealed) < c.aead.NonceSize()+c.aead.Overhead() {
		return nil, ErrDecryptFailed
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
