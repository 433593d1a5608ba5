// Copyright (c) 2025 Justin Cranford

// Package userid implements the zero-knowledge user-id derivation: a
// three-stage Blake3(KV) -> Argon2id -> Blake3(KV) pipeline that
// turns an email address into a stable 16-byte identifier without ever
// persisting the email itself.
package userid

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/cryptoprim"
	"github.com/arkaitz-dev/hashrand-sub003/internal/kv"
)

// Keys bundles the three 64-byte server keys the derivation needs. Each
// stage uses a distinct key: USER_ID_HMAC for the dynamic salt,
// ARGON2_SALT as the Argon2id pepper, USER_ID_ARGON2_COMPRESSION for the
// final compression.
type Keys struct {
	UserIDHMAC              []byte
	Argon2Salt              []byte
	UserIDArgon2Compression []byte
}

// UserIDSize is the length of the derived identifier, 16 bytes
const UserIDSize = 16

const argon2OutLen = 64

// Normalize lowercases and trims an email address before derivation.
// Unicode is first put into NFC form so visually identical emails
// normalize identically.
func Normalize(email string) string {
	nfc := norm.NFC.String(email)
	folded := cases.Fold().String(nfc)
	return strings.TrimSpace(folded)
}

// Derive computes user_id = kv(compression_key, argon2id(email, kv(hmac_key,
// normalized_email, 32), pepper, m=19456, t=2, p=1, 64), 16).
func Derive(keys Keys, email string) ([]byte, error) {
	if len(keys.UserIDHMAC) != kv.HMACKeySize || len(keys.Argon2Salt) != kv.HMACKeySize || len(keys.UserIDArgon2Compression) != kv.HMACKeySize {
		return nil, apperr.New(apperr.KindConfigError, "userid: all three derivation keys must be 64 bytes")
	}

	normalized := Normalize(email)
	if normalized == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "userid: email must not be empty")
	}

	dynamicSalt, err := kv.KV(keys.UserIDHMAC, []byte(normalized), 32)
	if err != nil {
		return nil, err
	}

	argon2Out := cryptoprim.Argon2id([]byte(email), dynamicSalt, keys.Argon2Salt, argon2OutLen, cryptoprim.DefaultArgon2idParams())

	userID, err := kv.KV(keys.UserIDArgon2Compression, argon2Out, UserIDSize)
	if err != nil {
		return nil, err
	}

	return userID, nil
}
