// Copyright (c) 2025 Justin Cranford

// Package session implements System A's server side: the
// ephemeral Ed25519/X25519 keypair the server derives on demand from a
// client's published session public key, and the small plain-data record
// that couples "current" and "next" keypairs across a single rotation
// handler.
package session

import (
	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/cryptoprim"
	"github.com/arkaitz-dev/hashrand-sub003/internal/kv"
)

// edSeedLabel and xSeedLabel domain-separate the two deterministic
// sub-derivations so the server's Ed25519 and X25519 session keys never
// share key material even though both come from the same master key and
// client public key.
const (
	edSeedLabel = "server-session-ed25519|"
	xSeedLabel  = "server-session-x25519|"
)

// ServerKeypair is the ephemeral server-side Ed25519/X25519 pair for one
// session, re-derivable on demand from (masterKey, clientPubKeyHex) and
// never persisted.
type ServerKeypair struct {
	Ed25519 *cryptoprim.Ed25519Keypair
	X25519  *cryptoprim.X25519Keypair
}

// DeriveServerKeypair recomputes the server's session keypair for the
// session identified by clientPubKeyHex, using masterKey (a 64-byte server
// HMAC key) as the root of the derivation. Calling this twice with the same
// inputs always yields the same keypair; that determinism is what lets the
// server avoid a session table.
func DeriveServerKeypair(masterKey []byte, clientPubKeyHex string) (*ServerKeypair, error) {
	if len(masterKey) != kv.HMACKeySize {
		return nil, apperr.New(apperr.KindConfigError, "session: master key must be 64 bytes")
	}

	edSeed, err := kv.KV(masterKey, []byte(edSeedLabel+clientPubKeyHex), 32)
	if err != nil {
		return nil, err
	}
	edKeypair, err := cryptoprim.Ed25519KeypairFromSeed(edSeed)
	if err != nil {
		return nil, err
	}

	xSeed, err := kv.KV(masterKey, []byte(xSeedLabel+clientPubKeyHex), 32)
	if err != nil {
		return nil, err
	}
	xKeypair, err := cryptoprim.X25519KeypairFromSeed(xSeed)
	if err != nil {
		return nil, err
	}

	return &ServerKeypair{Ed25519: edKeypair, X25519: xKeypair}, nil
}

// RotationState couples the "current" and "next" client public keys and the
// server's own current/next keypairs across a single refresh handler
// invocation. It is a plain data record, never shared across requests.
type RotationState struct {
	CurrentClientPubKeyHex string
	NextClientPubKeyHex    string
	CurrentServerKeypair   *ServerKeypair
	NextServerKeypair      *ServerKeypair
}

// NewRotationState derives both the current and next server keypairs for a
// rotation decision. When rotation isn't happening, callers pass the same
// value for both pub keys, and CurrentServerKeypair == NextServerKeypair in
// every field (deterministic derivation makes this safe).
func NewRotationState(masterKey []byte, currentClientPubKeyHex, nextClientPubKeyHex string) (*RotationState, error) {
	current, err := DeriveServerKeypair(masterKey, currentClientPubKeyHex)
	if err != nil {
		return nil, err
	}
	next := current
	if nextClientPubKeyHex != currentClientPubKeyHex {
		next, err = DeriveServerKeypair(masterKey, nextClientPubKeyHex)
		if err != nil {
			return nil, err
		}
	}
	return &RotationState{
		CurrentClientPubKeyHex: currentClientPubKeyHex,
		NextClientPubKeyHex:    nextClientPubKeyHex,
		CurrentServerKeypair:   current,
		NextServerKeypair:      next,
	}, nil
}
