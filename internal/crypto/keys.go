// Package crypto implements the hybrid encryption protecting panic
// recordings at rest.
//
// Bulk audio is encrypted with AES-256-GCM in independently authenticated
// chunks; the per-recording AES key is wrapped with RSA-OAEP under the
// recipient's public key. The device only ever holds the public key, so it
// can produce artifacts it provably cannot read back. Key generation and
// decryption live in offline CLI tools and are never linked into the
// device daemon.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

// DefaultKeyBits is the RSA modulus size used for generated keypairs.
const DefaultKeyBits = 4096

const (
	pemTypePrivate          = "PRIVATE KEY"
	pemTypeEncryptedPrivate = "NIPPELBOARD ENCRYPTED PRIVATE KEY"
	pemTypePublic           = "PUBLIC KEY"

	kdfSaltSize = 16
)

// Argon2id parameters for private-key protection. Memory-hard on purpose:
// an attacker brute-forcing the passphrase pays 64 MiB per guess.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
)

var (
	// ErrPassphraseRequired is returned when loading a protected private
	// key without a passphrase.
	ErrPassphraseRequired = errors.New("private key is passphrase-protected")

	// ErrWrongPassphrase is returned when the passphrase does not unlock
	// the private key (or the key file is corrupted).
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted private key")
)

// GenerateKeyPair generates an RSA keypair of the given modulus size.
func GenerateKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("refusing to generate %d-bit key, minimum is 2048", bits)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return key, nil
}

// SaveKeyPair writes public_key.pem and private_key.pem into dir. A
// non-empty passphrase protects the private key with an Argon2id-derived
// AES-256-GCM wrap; the public key is always written unprotected. The
// private key file is created with owner-only permissions.
func SaveKeyPair(dir string, key *rsa.PrivateKey, passphrase []byte) (pubPath, privPath string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create key directory: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}

	var privBlock *pem.Block
	if len(passphrase) > 0 {
		sealed, err := sealPrivateKey(privDER, passphrase)
		if err != nil {
			return "", "", err
		}
		privBlock = &pem.Block{
			Type:    pemTypeEncryptedPrivate,
			Headers: map[string]string{"KDF": "argon2id"},
			Bytes:   sealed,
		}
	} else {
		privBlock = &pem.Block{Type: pemTypePrivate, Bytes: privDER}
	}

	privPath = filepath.Join(dir, "private_key.pem")
	if err := os.WriteFile(privPath, pem.EncodeToMemory(privBlock), 0600); err != nil {
		return "", "", fmt.Errorf("failed to write private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	pubPath = filepath.Join(dir, "public_key.pem")
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: pemTypePublic, Bytes: pubDER})
	if err := os.WriteFile(pubPath, pubPEM, 0644); err != nil {
		return "", "", fmt.Errorf("failed to write public key: %w", err)
	}

	return pubPath, privPath, nil
}

// LoadPublicKey loads a PEM-encoded RSA public key.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePublic {
		return nil, fmt.Errorf("%s: not a PEM public key", path)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s: not an RSA public key", path)
	}
	return pub, nil
}

// LoadPrivateKey loads a PEM-encoded RSA private key, unwrapping it with
// the passphrase if the file is protected.
func LoadPrivateKey(path string, passphrase []byte) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: not a PEM private key", path)
	}

	var der []byte
	switch block.Type {
	case pemTypePrivate:
		der = block.Bytes
	case pemTypeEncryptedPrivate:
		if len(passphrase) == 0 {
			return nil, ErrPassphraseRequired
		}
		der, err = openPrivateKey(block.Bytes, passphrase)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%s: unexpected PEM block %q", path, block.Type)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: not an RSA private key", path)
	}
	return key, nil
}

// IsProtected reports whether the private key file at path requires a
// passphrase, without attempting to unlock it.
func IsProtected(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return false, fmt.Errorf("%s: not a PEM private key", path)
	}
	return block.Type == pemTypeEncryptedPrivate, nil
}

// WrapKey encrypts a symmetric key under the public key using
// RSA-OAEP with SHA-256.
func WrapKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap key: %w", err)
	}
	return wrapped, nil
}

// UnwrapKey recovers a symmetric key wrapped with WrapKey. A mismatched
// private key fails with an error, never with wrong bytes.
func UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key: %w", err)
	}
	return key, nil
}

// deriveKey stretches a passphrase into an AES-256 key with Argon2id.
func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// sealPrivateKey protects a DER private key: salt || nonce || AES-GCM(der).
func sealPrivateKey(der, passphrase []byte) ([]byte, error) {
	salt := make([]byte, kdfSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	aead, err := newAEAD(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(der)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, der, nil), nil
}

func openPrivateKey(sealed, passphrase []byte) ([]byte, error) {
	if len(sealed) < kdfSaltSize+NonceSize {
		return nil, ErrWrongPassphrase
	}
	salt := sealed[:kdfSaltSize]
	nonce := sealed[kdfSaltSize : kdfSaltSize+NonceSize]
	aead, err := newAEAD(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	der, err := aead.Open(nil, nonce, sealed[kdfSaltSize+NonceSize:], nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return der, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}
	return aead, nil
}
