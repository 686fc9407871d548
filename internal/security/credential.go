// Package security implements the B2C operator security-credential check
// (§4.5): decrypting the RSA PKCS#1 v1.5 blob the sandbox hands operators
// against the business's private key, recovering the plaintext password.
//
// No library in the reference corpus wraps PKCS#1 v1.5 RSA encryption/
// decryption; crypto/rsa is the standard, minimal way to do this in Go and
// is used here for exactly that one primitive (see DESIGN.md).
package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

var ErrInvalidSecurityCredential = errors.New("security credential decryption failed")

// GenerateKeyPair returns a fresh 2048-bit RSA keypair PEM-encoded, used
// when a business is created with no operator credential configured.
func GenerateKeyPair() (privatePEM string, publicPEM string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	privBytes := x509.MarshalPKCS1PrivateKey(key)
	privBlock := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes}

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("marshal public key: %w", err)
	}
	pubBlock := &pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}

	return string(pem.EncodeToMemory(privBlock)), string(pem.EncodeToMemory(pubBlock)), nil
}

// EncryptPassword mints the base64 blob an operator would present as their
// SecurityCredential, given the business's public key. Used by the sandbox
// demo/test tooling to produce a valid credential without a real operator.
func EncryptPassword(publicPEM, password string) (string, error) {
	block, _ := pem.Decode([]byte(publicPEM))
	if block == nil {
		return "", errors.New("invalid public key PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return "", errors.New("public key is not RSA")
	}
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, rsaPub, []byte(password))
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptCredential reverses EncryptPassword against the business's private
// key PEM. It returns ErrInvalidSecurityCredential on any decode/decrypt
// failure so callers don't need to distinguish malformed input from a
// genuine key mismatch.
func DecryptCredential(privatePEM, base64Blob string) (string, error) {
	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil {
		return "", ErrInvalidSecurityCredential
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return "", ErrInvalidSecurityCredential
	}
	ciphertext, err := base64.StdEncoding.DecodeString(base64Blob)
	if err != nil {
		return "", ErrInvalidSecurityCredential
	}
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, key, ciphertext)
	if err != nil {
		return "", ErrInvalidSecurityCredential
	}
	return string(plain), nil
}
