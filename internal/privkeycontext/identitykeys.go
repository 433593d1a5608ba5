// Copyright (c) 2025 Justin Cranford

package privkeycontext

import (
	"crypto/ed25519"

	"lukechampine.com/blake3"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/cryptoprim"
)

// IdentityKeys is a user's permanent System B keypair set, fully
// deterministic from (email, privkey_context). The server never runs this
// derivation in production — it has user_id, not email — but ships it for
// clients and for the end-to-end tests that assert re-derivability.
type IdentityKeys struct {
	Ed25519 *cryptoprim.Ed25519Keypair
	X25519  *cryptoprim.X25519Keypair
}

// DeriveIdentityKeys computes the System B keypairs:
//
//	ed25519_priv = blake3_kdf(context = "Ed25519" || base58(privkey_context), ikm = utf8(email), 32)
//	x25519_priv  = blake3_kdf(context = "X25519"  || base58(privkey_context), ikm = utf8(email), 32)
//
// Public keys follow by curve multiplication. Distinct emails or distinct
// privkey_contexts yield statistically independent keys; the same pair
// always yields the same keys.
func DeriveIdentityKeys(email string, privkeyContext []byte) (*IdentityKeys, error) {
	if email == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "privkeycontext: email is required")
	}
	if len(privkeyContext) != PlaintextSize {
		return nil, apperr.New(apperr.KindCryptoError, "privkeycontext: privkey_context must be 64 bytes")
	}

	contextB58 := cryptoprim.Base58Encode(privkeyContext)

	edSeed := make([]byte, ed25519.SeedSize)
	blake3.DeriveKey(edSeed, "Ed25519"+contextB58, []byte(email))
	edKeypair, err := cryptoprim.Ed25519KeypairFromSeed(edSeed)
	if err != nil {
		return nil, err
	}

	xSeed := make([]byte, cryptoprim.X25519KeySize)
	blake3.DeriveKey(xSeed, "X25519"+contextB58, []byte(email))
	xKeypair, err := cryptoprim.X25519KeypairFromSeed(xSeed)
	if err != nil {
		return nil, err
	}

	return &IdentityKeys{Ed25519: edKeypair, X25519: xKeypair}, nil
}
