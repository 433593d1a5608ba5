// Copyright (c) 2025 Justin Cranford

package cryptoprim

import (
	"lukechampine.com/blake3"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
)

// ecdhEnvelopeOutLen is 32 bytes of key plus 12 bytes of nonce.
const ecdhEnvelopeOutLen = 44

// DeriveKeyAndNonce implements the ECDH envelope key schedule:
// shared = X25519(myPriv, theirPub); out44 = blake3_keyed(shared).update(context).xof(44);
// key = out44[0:32], nonce = out44[32:44]. Used by the privkey-context
// manager and the shared-secret feature, with context fixed to
// "SharedSecretKeyMaterial_v1" for both.
func DeriveKeyAndNonce(myPriv, theirPub [X25519KeySize]byte, context string) (key [32]byte, nonce [12]byte, err error) {
	shared, ecdhErr := ComputeECDH(myPriv, theirPub)
	if ecdhErr != nil {
		return key, nonce, ecdhErr
	}

	hasher := blake3.New(32, shared[:])
	if _, writeErr := hasher.Write([]byte(context)); writeErr != nil {
		return key, nonce, apperr.Wrap(apperr.KindCryptoError, "ecdh envelope: write context to keyed hasher", writeErr)
	}

	out := make([]byte, ecdhEnvelopeOutLen)
	if _, readErr := hasher.XOF().Read(out); readErr != nil {
		return key, nonce, apperr.Wrap(apperr.KindCryptoError, "ecdh envelope: read xof output", readErr)
	}

	copy(key[:], out[0:32])
	copy(nonce[:], out[32:44])
	return key, nonce, nil
}

// ECDHEnvelopeEncrypt encrypts plaintext under the key/nonce derived from
// (myPriv, theirPub, context) via DeriveKeyAndNonce.
func ECDHEnvelopeEncrypt(myPriv, theirPub [X25519KeySize]byte, context string, plaintext []byte) ([]byte, error) {
	key, nonce, err := DeriveKeyAndNonce(myPriv, theirPub, context)
	if err != nil {
		return nil, err
	}
	return AEADEncrypt(key[:], nonce[:], plaintext, nil)
}

// ECDHEnvelopeDecrypt decrypts ciphertext produced by ECDHEnvelopeEncrypt.
// Because X25519 ECDH is symmetric, the caller passes its own private key
// and the partner's public key, regardless of which side encrypted.
func ECDHEnvelopeDecrypt(myPriv, theirPub [X25519KeySize]byte, context string, ciphertext []byte) ([]byte, error) {
	key, nonce, err := DeriveKeyAndNonce(myPriv, theirPub, context)
	if err != nil {
		return nil, err
	}
	return AEADDecrypt(key[:], nonce[:], ciphertext, nil)
}
