// Package cryptox implements the chunk crypto engine: key generation,
// authenticated encryption of chunks with AES-256-GCM and plaintext hashing.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the length of an upload key (AES-256).
	KeySize = 32
	// NonceSize is the GCM nonce length prepended to every sealed chunk.
	NonceSize = 12
	// HashSize is the length of a chunk digest.
	HashSize = sha256.Size
)

// GenerateKey returns a fresh random AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// DeriveKey derives an upload key from a passphrase with argon2id.
// The same passphrase and salt always yield the same key.
func DeriveKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// ParseKey decodes a hex-encoded upload key and checks its length.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", common.ErrInvalidInput)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("parse key: want %d bytes, got %d: %w", KeySize, len(key), common.ErrInvalidInput)
	}
	return key, nil
}

// FormatKey hex-encodes key for transport in a header or on the terminal.
func FormatKey(key []byte) string {
	return hex.EncodeToString(key)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptChunk encrypts plaintext with AES-256-GCM under key.
//
// A new random 12-byte nonce is drawn for every call, so the same key can
// safely encrypt every chunk of an upload. The nonce and ciphertext are
// returned separately; Seal produces the concatenated form.
//
// Example:
//
//	key, _ := GenerateKey()
//	nonce, ct, err := EncryptChunk([]byte("a,b,c\n1,2,3\n"), key)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pt, err := DecryptChunk(nonce, ct, key)
func EncryptChunk(plaintext, key []byte) (nonce, ciphertext []byte, err error) {
	if len(key) != KeySize {
		return nil, nil, fmt.Errorf("encrypt: key size %d: %w", len(key), common.ErrInvalidInput)
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt: %w", err)
	}

	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("encrypt: nonce: %w", err)
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

// DecryptChunk reverses EncryptChunk.
//
// Any mismatch between nonce, ciphertext and key, including a key or nonce of
// the wrong length, yields common.ErrAuthenticationFailure and no plaintext.
func DecryptChunk(nonce, ciphertext, key []byte) ([]byte, error) {
	if len(key) != KeySize || len(nonce) != NonceSize {
		return nil, common.ErrAuthenticationFailure
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, common.ErrAuthenticationFailure
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, common.ErrAuthenticationFailure
	}
	return plaintext, nil
}

// Seal encrypts plaintext and returns nonce||ciphertext, the layout stored
// by the asset store.
func Seal(plaintext, key []byte) ([]byte, error) {
	nonce, ciphertext, err := EncryptChunk(plaintext, key)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(nonce)+len(ciphertext))
	sealed = append(sealed, nonce...)
	return append(sealed, ciphertext...), nil
}

// Open splits a sealed chunk into nonce and ciphertext and decrypts it.
func Open(sealed, key []byte) ([]byte, error) {
	if len(sealed) < NonceSize {
		return nil, common.ErrAuthenticationFailure
	}
	return DecryptChunk(sealed[:NonceSize], sealed[NonceSize:], key)
}

// HashChunk returns the SHA-256 digest of a plaintext chunk.
func HashChunk(plaintext []byte) []byte {
	sum := sha256.Sum256(plaintext)
	return sum[:]
}

// VerifyHash reports whether plaintext hashes to want.
func VerifyHash(plaintext, want []byte) bool {
	got := HashChunk(plaintext)
	return len(want) == len(got) && subtle.ConstantTimeCompare(got, want) == 1
}

