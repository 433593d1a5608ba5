// Copyright (c) 2025 Justin Cranford

// Package privkeycontext manages the server side of System B:
// generating the 64-byte secret a client derives its deterministic Ed25519
// and X25519 identity keys from, persisting it encrypted at rest under an
// ECDH envelope keyed to the server's own master keypair, and re-encrypting
// it per-session for delivery to the client over ECDH with the client's
// current session X25519 public key.
package privkeycontext

import (
	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/cryptoprim"
	"github.com/arkaitz-dev/hashrand-sub003/internal/kv"
)

// sharedSecretContext is the ECDH envelope domain separator shared by
// at-rest encryption and per-session delivery.
const sharedSecretContext = "SharedSecretKeyMaterial_v1"

// PlaintextSize is the fixed length of privkey_context.
const PlaintextSize = 64

// dbIndexSize is the length of the privkey_context table's primary key,
// deliberately distinct in derivation from user_id.
const dbIndexSize = 16

// masterKeypairSeedLabel domain-separates the server master X25519 keypair
// derivation from every other use of the compression key.
const masterKeypairSeedLabel = "privkeycontext-master-x25519"

// DeriveMasterKeypair recomputes the server's master X25519 keypair from a
// 64-byte server HMAC key. The configuration carries only the six
// HMAC-style keys, with no seventh slot for a persisted master X25519
// keypair, yet encrypted privkey_context rows must remain decryptable
// across restarts. The master keypair is therefore deterministically
// re-derived from existing config material rather than generated randomly
// at each boot.
func DeriveMasterKeypair(compressionKey []byte) (*cryptoprim.X25519Keypair, error) {
	seed, err := kv.KV(compressionKey, []byte(masterKeypairSeedLabel), 32)
	if err != nil {
		return nil, err
	}
	return cryptoprim.X25519KeypairFromSeed(seed)
}

// DBIndex computes the privkey_context primary key for userID, using a
// separate derivation (not the one producing user_id) so the table cannot
// be equi-joined against users.
func DBIndex(compressionKey, userID []byte) ([]byte, error) {
	return kv.KV(compressionKey, userID, dbIndexSize)
}

// Generate creates a fresh 64-byte privkey_context on first login.
func Generate() ([]byte, error) {
	return cryptoprim.RandomBytes(PlaintextSize)
}

// EncryptAtRest encrypts a freshly generated privkey_context for storage.
// It mints a fresh ephemeral X25519 keypair, derives the envelope key via
// ECDH(ephemeral_priv, masterPub), and returns both the ciphertext and the
// ephemeral public key the caller must persist alongside it — decryption
// cannot recover the shared secret without it.
func EncryptAtRest(masterPub [cryptoprim.X25519KeySize]byte, plaintext []byte) (ciphertext []byte, ephemeralPub [cryptoprim.X25519KeySize]byte, err error) {
	if len(plaintext) != PlaintextSize {
		return nil, ephemeralPub, apperr.New(apperr.KindCryptoError, "privkeycontext: plaintext must be 64 bytes")
	}

	ephemeral, err := cryptoprim.GenerateX25519Keypair()
	if err != nil {
		return nil, ephemeralPub, err
	}

	ciphertext, err = cryptoprim.ECDHEnvelopeEncrypt(ephemeral.PrivateKey, masterPub, sharedSecretContext, plaintext)
	if err != nil {
		return nil, ephemeralPub, err
	}

	return ciphertext, ephemeral.PublicKey, nil
}

// DecryptAtRest reverses EncryptAtRest: ECDH(masterPriv, ephemeralPub)
// reaches the same shared secret the encrypting side computed.
func DecryptAtRest(masterPriv [cryptoprim.X25519KeySize]byte, ephemeralPub [cryptoprim.X25519KeySize]byte, ciphertext []byte) ([]byte, error) {
	plaintext, err := cryptoprim.ECDHEnvelopeDecrypt(masterPriv, ephemeralPub, sharedSecretContext, ciphertext)
	if err != nil {
		return nil, err
	}
	if len(plaintext) != PlaintextSize {
		return nil, apperr.New(apperr.KindCryptoError, "privkeycontext: decrypted plaintext has unexpected length")
	}
	return plaintext, nil
}

// DeliverForSession re-encrypts privkey_context for the current session,
// using ECDH between the server's session X25519 private key and the
// client's published session X25519 public key. The
// client decrypts with the symmetric ECDH partner operation and then
// derives its System B identity keys.
func DeliverForSession(sessionServerPriv [cryptoprim.X25519KeySize]byte, sessionClientPub [cryptoprim.X25519KeySize]byte, plaintext []byte) ([]byte, error) {
	if len(plaintext) != PlaintextSize {
		return nil, apperr.New(apperr.KindCryptoError, "privkeycontext: plaintext must be 64 bytes")
	}
	return cryptoprim.ECDHEnvelopeEncrypt(sessionServerPriv, sessionClientPub, sharedSecretContext, plaintext)
}
