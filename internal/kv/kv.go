// Copyright (c) 2025 Justin Cranford

// Package kv implements the Blake3 keyed-variable pipeline: the
// single universal primitive every derivation in the core builds on —
// (64-byte key, data, out_len) -> bytes.
package kv

import (
	"lukechampine.com/blake3"
	"github.com/mr-tron/base58"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
)

// HMACKeySize is the fixed length every server HMAC key must have. Every
// legacy 32-byte call site the original implementation had is considered a
// bug and out of scope; KV refuses anything but 64 bytes.
const HMACKeySize = 64

// derivedKeySize is the size of a Blake3 keyed-mode key.
const derivedKeySize = 32

// compressionThreshold is the length at or above which data is used
// directly as key material for the derive_key step, instead of first being
// compressed with a plain Blake3 hash. The branch choice is intentional and
// fixed by this length rule.
const compressionThreshold = 32

// KV computes kv(hmacKey, data, outLen):
//  1. hmacKey must be exactly 64 bytes.
//  2. contextString = base58(hmacKey).
//  3. keyMaterial = data if len(data) >= 32, else blake3(data).
//  4. derivedKey = blake3_derive_key(context = contextString, keyMaterial).
//  5. out = blake3_keyed(derivedKey).update(data).xof(outLen).
func KV(hmacKey []byte, data []byte, outLen int) ([]byte, error) {
	if len(hmacKey) != HMACKeySize {
		return nil, apperr.New(apperr.KindCryptoError, "kv: hmac key must be 64 bytes")
	}
	if outLen < 0 {
		return nil, apperr.New(apperr.KindCryptoError, "kv: out_len must be non-negative")
	}

	contextString := base58.Encode(hmacKey)

	var keyMaterial []byte
	if len(data) >= compressionThreshold {
		keyMaterial = data
	} else {
		digest := blake3.Sum256(data)
		keyMaterial = digest[:]
	}

	derivedKey := make([]byte, derivedKeySize)
	blake3.DeriveKey(derivedKey, contextString, keyMaterial)

	hasher := blake3.New(32, derivedKey)
	if _, err := hasher.Write(data); err != nil {
		return nil, apperr.Wrap(apperr.KindCryptoError, "kv: write to keyed hasher", err)
	}

	out := make([]byte, outLen)
	xof := hasher.XOF()
	if _, err := xof.Read(out); err != nil {
		return nil, apperr.Wrap(apperr.KindCryptoError, "kv: read xof output", err)
	}

	return out, nil
}

// MustKV panics on error; used only where the caller has already validated
// its key length (e.g. at process startup against Config).
func MustKV(hmacKey []byte, data []byte, outLen int) []byte {
	out, err := KV(hmacKey, data, outLen)
	if err != nil {
		panic(err)
	}
	return out
}
