// Copyright (c) 2025 Justin Cranford

// Package cryptoprim wraps the raw cryptographic primitives the core is
// built from: Ed25519 sign/verify, X25519 ECDH, ChaCha20-Poly1305 AEAD, and
// Argon2id. The ECDH clamping and low-order-point checks mirror
// postalsys-Muti-Metroo's internal/crypto package.
package cryptoprim

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"io"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
)

const (
	// X25519KeySize is the size of an X25519 private or public key.
	X25519KeySize = 32

	// Ed25519 sizes mirror crypto/ed25519's constants; re-exported so
	// callers don't need to import crypto/ed25519 directly.
	Ed25519PrivateKeySize = ed25519.PrivateKeySize
	Ed25519PublicKeySize  = ed25519.PublicKeySize
	Ed25519SignatureSize  = ed25519.SignatureSize

	chachaKeySize   = chacha20poly1305.KeySize
	chachaNonceSize = chacha20poly1305.NonceSize
)

// Ed25519Keypair is an ephemeral or derived Ed25519 signing keypair.
type Ed25519Keypair struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// GenerateEd25519Keypair creates a fresh random Ed25519 keypair.
func GenerateEd25519Keypair() (*Ed25519Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCryptoError, "generate ed25519 keypair", err)
	}
	return &Ed25519Keypair{PrivateKey: priv, PublicKey: pub}, nil
}

// Ed25519KeypairFromSeed derives a deterministic Ed25519 keypair from a
// 32-byte seed, used by System B's deterministic identity keys.
func Ed25519KeypairFromSeed(seed []byte) (*Ed25519Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, apperr.New(apperr.KindCryptoError, "ed25519 seed must be 32 bytes")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Keypair{PrivateKey: priv, PublicKey: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign signs message with priv, returning a 64-byte Ed25519 signature.
func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// Verify checks an Ed25519 signature. It never returns an error for a bad
// signature — callers distinguish "invalid signature" from other failures
// by checking the boolean's SignatureInvalid kind.
func Verify(pub ed25519.PublicKey, message, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, signature)
}

// X25519Keypair is an ephemeral or derived X25519 ECDH keypair.
type X25519Keypair struct {
	PrivateKey [X25519KeySize]byte
	PublicKey  [X25519KeySize]byte
}

// GenerateX25519Keypair creates a fresh random, correctly clamped X25519
// keypair. Grounded on postalsys-Muti-Metroo's GenerateEphemeralKeypair.
func GenerateX25519Keypair() (*X25519Keypair, error) {
	var kp X25519Keypair
	if _, err := io.ReadFull(rand.Reader, kp.PrivateKey[:]); err != nil {
		return nil, apperr.Wrap(apperr.KindCryptoError, "generate x25519 private key", err)
	}
	clamp(&kp.PrivateKey)
	curve25519.ScalarBaseMult(&kp.PublicKey, &kp.PrivateKey)
	return &kp, nil
}

// X25519KeypairFromSeed derives a deterministic X25519 keypair from a
// 32-byte seed, used by System B.
func X25519KeypairFromSeed(seed []byte) (*X25519Keypair, error) {
	if len(seed) != X25519KeySize {
		return nil, apperr.New(apperr.KindCryptoError, "x25519 seed must be 32 bytes")
	}
	var kp X25519Keypair
	copy(kp.PrivateKey[:], seed)
	clamp(&kp.PrivateKey)
	curve25519.ScalarBaseMult(&kp.PublicKey, &kp.PrivateKey)
	return &kp, nil
}

func clamp(priv *[X25519KeySize]byte) {
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64
}

// ComputeECDH performs X25519 Diffie-Hellman and rejects low-order points,
// mirroring postalsys-Muti-Metroo's ComputeECDH.
func ComputeECDH(privateKey, remotePublicKey [X25519KeySize]byte) ([X25519KeySize]byte, error) {
	var sharedSecret [X25519KeySize]byte
	var zero [X25519KeySize]byte

	if subtle.ConstantTimeCompare(remotePublicKey[:], zero[:]) == 1 {
		return sharedSecret, apperr.New(apperr.KindCryptoError, "ecdh: remote public key is zero")
	}

	curve25519.ScalarMult(&sharedSecret, &privateKey, &remotePublicKey)

	if subtle.ConstantTimeCompare(sharedSecret[:], zero[:]) == 1 {
		return sharedSecret, apperr.New(apperr.KindCryptoError, "ecdh: low-order shared secret")
	}

	return sharedSecret, nil
}

// AEADEncrypt encrypts plaintext with ChaCha20-Poly1305 using a caller
// supplied 32-byte key and 12-byte nonce (both typically derived via kv.KV).
func AEADEncrypt(key, nonce, plaintext, additionalData []byte) ([]byte, error) {
	if len(key) != chachaKeySize {
		return nil, apperr.New(apperr.KindCryptoError, "aead: key must be 32 bytes")
	}
	if len(nonce) != chachaNonceSize {
		return nil, apperr.New(apperr.KindCryptoError, "aead: nonce must be 12 bytes")
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCryptoError, "aead: create cipher", err)
	}
	return aead.Seal(nil, nonce, plaintext, additionalData), nil
}

// AEADDecrypt decrypts ciphertext encrypted by AEADEncrypt. A failure here
// always means the data is corrupt or was tampered with; callers map it to
// the appropriate taxonomy kind (e.g. MagicLinkInvalidOrExpired, TokenCorrupt).
func AEADDecrypt(key, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(key) != chachaKeySize {
		return nil, apperr.New(apperr.KindCryptoError, "aead: key must be 32 bytes")
	}
	if len(nonce) != chachaNonceSize {
		return nil, apperr.New(apperr.KindCryptoError, "aead: nonce must be 12 bytes")
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCryptoError, "aead: create cipher", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCryptoError, "aead: open failed", err)
	}
	return plaintext, nil
}

// Argon2idParams are the fixed parameters for user-id
// derivation: m=19456 KiB, t=2, p=1.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultArgon2idParams returns the parameters used for user-id derivation.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{MemoryKiB: 19456, Iterations: 2, Parallelism: 1}
}

// Argon2id runs Argon2id(password, salt, pepper-as-secret) -> outLen bytes.
// golang.org/x/crypto/argon2 has no secret/key parameter, unlike libsodium's
// Argon2; pepper is folded into password via HMAC-SHA256 first so the
// server-held ARGON2_SALT key still acts as a pepper the database alone
// can't reproduce.
func Argon2id(password, salt, pepper []byte, outLen uint32, params Argon2idParams) []byte {
	peppered := password
	if len(pepper) > 0 {
		mac := hmac.New(sha256.New, pepper)
		mac.Write(password)
		peppered = mac.Sum(nil)
	}
	return argon2.IDKey(peppered, salt, params.Iterations, params.MemoryKiB, params.Parallelism, outLen)
}

// Base58Encode / Base58Decode expose the alphabet used for magic-link raw
// tokens and kv's context string.
func Base58Encode(data []byte) string { return base58.Encode(data) }

func Base58Decode(s string) ([]byte, error) {
	out, err := base58.Decode(s)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "base58 decode", err)
	}
	return out, nil
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, apperr.Wrap(apperr.KindCryptoError, "read random bytes", err)
	}
	return b, nil
}
