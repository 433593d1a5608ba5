// Copyright (c) 2025 Justin Cranford

// Package magiclink implements the single-use, time-limited login token
// described in the login protocol: issuance encrypts the login intent under a
// token-derived key so the database never sees the raw token or the
// plaintext email, and redemption is at-most-once by deleting the row
// before any other state changes.
package magiclink

import (
	"encoding/json"
	"time"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/canonical"
	"github.com/arkaitz-dev/hashrand-sub003/internal/cryptoprim"
	"github.com/arkaitz-dev/hashrand-sub003/internal/domain"
	"github.com/arkaitz-dev/hashrand-sub003/internal/kv"
)

// Keys bundles the two 64-byte server keys the magic-link pipeline needs.
type Keys struct {
	MagicLinkHMAC    []byte
	ChaChaEncryption []byte
}

const (
	tokenHashSize = 16
	nonceSize     = 12
	cipherKeySize = 32
	rawTokenSize  = 32
)

// Intent is the plaintext payload encrypted into a magic link and decrypted
// back out at redemption.
type Intent struct {
	Email     string `json:"email"`
	UIHost    string `json:"ui_host"`
	Next      string `json:"next"`
	EmailLang string `json:"email_lang"`
	PubKey    string `json:"pub_key"`
	// PubKeyX25519 is the client's session X25519 public key, announced
	// alongside the Ed25519 session key so the server can deliver
	// privkey_context over ECDH immediately on redemption.
	PubKeyX25519 string `json:"pub_key_x25519"`
}

// Issued is the result of Issue: the row to persist and the human-readable
// URL to deliver (by email, or directly in dev).
type Issued struct {
	Row *domain.MagicLink
	URL string
}

// Issue builds a magic-link row and its delivery URL. The caller persists
// Issued.Row.
func Issue(keys Keys, intent Intent, ttl time.Duration) (*Issued, error) {
	if len(keys.MagicLinkHMAC) != kv.HMACKeySize || len(keys.ChaChaEncryption) != kv.HMACKeySize {
		return nil, apperr.New(apperr.KindConfigError, "magiclink: keys must be 64 bytes")
	}

	rawToken, err := cryptoprim.RandomBytes(rawTokenSize)
	if err != nil {
		return nil, err
	}
	rawTokenB58 := cryptoprim.Base58Encode(rawToken)

	tokenHash, err := kv.KV(keys.MagicLinkHMAC, rawToken, tokenHashSize)
	if err != nil {
		return nil, err
	}

	plaintext, err := canonical.Serialize(intent)
	if err != nil {
		return nil, err
	}

	nonce, err := kv.KV(keys.MagicLinkHMAC, append(append([]byte{}, rawToken...), []byte("nonce")...), nonceSize)
	if err != nil {
		return nil, err
	}

	cipherKey, err := kv.KV(keys.ChaChaEncryption, rawToken, cipherKeySize)
	if err != nil {
		return nil, err
	}

	blob, err := cryptoprim.AEADEncrypt(cipherKey, nonce, plaintext, nil)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var nextParam *string
	if intent.Next != "" {
		next := intent.Next
		nextParam = &next
	}

	row := &domain.MagicLink{
		TokenHash:      tokenHash,
		Timestamp:      now,
		EncryptionBlob: blob,
		NextParam:      nextParam,
		ExpiresAt:      now.Add(ttl),
	}

	url := intent.UIHost + "/login?magiclink=" + rawTokenB58

	return &Issued{Row: row, URL: url}, nil
}

// TokenHash recomputes the database primary key for rawTokenB58, used by
// the redemption lookup before the row is fetched.
func TokenHash(keys Keys, rawTokenB58 string) ([]byte, error) {
	rawToken, err := cryptoprim.Base58Decode(rawTokenB58)
	if err != nil {
		return nil, err
	}
	return kv.KV(keys.MagicLinkHMAC, rawToken, tokenHashSize)
}

// Redeem decrypts a fetched-and-deleted row's encryption blob back into the
// original Intent. The row must already have been
// fetched and deleted by the caller (step 4 is a repository-transaction
// concern, not this package's).
func Redeem(keys Keys, rawTokenB58 string, row *domain.MagicLink) (*Intent, error) {
	if row.IsExpired() {
		return nil, apperr.New(apperr.KindMagicLinkInvalidOrExpired, "magiclink: token expired")
	}

	rawToken, err := cryptoprim.Base58Decode(rawTokenB58)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindMagicLinkInvalidOrExpired, "magiclink: decode token", err)
	}

	nonce, err := kv.KV(keys.MagicLinkHMAC, append(append([]byte{}, rawToken...), []byte("nonce")...), nonceSize)
	if err != nil {
		return nil, err
	}
	cipherKey, err := kv.KV(keys.ChaChaEncryption, rawToken, cipherKeySize)
	if err != nil {
		return nil, err
	}

	plaintext, err := cryptoprim.AEADDecrypt(cipherKey, nonce, row.EncryptionBlob, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindMagicLinkInvalidOrExpired, "magiclink: decrypt failed, token corrupt", err)
	}

	var intent Intent
	if err := json.Unmarshal(plaintext, &intent); err != nil {
		return nil, apperr.Wrap(apperr.KindMagicLinkInvalidOrExpired, "magiclink: decode intent", err)
	}

	return &intent, nil
}
