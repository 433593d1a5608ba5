// Copyright (c) 2025 Justin Cranford

// Package urlcrypto implements the URL-parameter encryption scheme:
// structured navigation parameters travel as an opaque ciphertext
// in the URL instead of plaintext query parameters, keyed by three 64-byte
// per-session tokens and a FIFO-20 prehash-seed store that lets the
// ciphertext's key material rotate without a server-side session table.
package urlcrypto

import (
	"encoding/json"
	"sync"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/canonical"
	"github.com/arkaitz-dev/hashrand-sub003/internal/cryptoprim"
	"github.com/arkaitz-dev/hashrand-sub003/internal/kv"
)

const (
	fifoCapacity  = 20
	idxSize       = 8
	saltSize      = 32
	prehashSize   = 64
	cipherKeySize = 32
	nonceSize     = 12
)

// Tokens bundles the three 64-byte per-session tokens the scheme is keyed
// by. Each is itself derived server-side via kv over the session's pub_key
// plus a domain-separator string.
type Tokens struct {
	CipherToken []byte
	NonceToken  []byte
	HMACKey     []byte
}

// SeedStore is a FIFO-20 ring of (idx -> prehash_seed) pairs. In the
// browser it lives in the tab under a single writer; a Go server holding
// one per session provides the same bounded-rotation behavior.
type SeedStore struct {
	mu    sync.Mutex
	order []string
	seeds map[string][]byte
}

// NewSeedStore creates an empty FIFO-20 seed store.
func NewSeedStore() *SeedStore {
	return &SeedStore{seeds: make(map[string][]byte, fifoCapacity)}
}

func (s *SeedStore) put(idx string, seed []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seeds[idx]; !exists {
		s.order = append(s.order, idx)
	}
	s.seeds[idx] = seed

	for len(s.order) > fifoCapacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.seeds, oldest)
	}
}

func (s *SeedStore) get(idx string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seed, ok := s.seeds[idx]
	return seed, ok
}

// Encrypt builds the `p` URL-parameter value for params: salt the payload,
// mint a prehash seed, derive the key schedule from it, AEAD-encrypt, and
// prefix the seed's 8-byte index.
func Encrypt(tokens Tokens, store *SeedStore, params map[string]interface{}) (string, error) {
	salt, err := cryptoprim.RandomBytes(saltSize)
	if err != nil {
		return "", err
	}

	augmented := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		augmented[k] = v
	}
	augmented["_salt"] = canonical.Base64URLNoPad(salt)

	prehashSeed, err := cryptoprim.RandomBytes(saltSize)
	if err != nil {
		return "", err
	}

	idxBytes, err := kv.KV(tokens.HMACKey, prehashSeed, idxSize)
	if err != nil {
		return "", err
	}
	idx := canonical.Base64URLNoPad(idxBytes)

	store.put(idx, prehashSeed)

	prehash, err := kv.KV(tokens.HMACKey, prehashSeed, prehashSize)
	if err != nil {
		return "", err
	}

	cipherKey, err := kv.KV(tokens.CipherToken, prehash, cipherKeySize)
	if err != nil {
		return "", err
	}
	nonce, err := kv.KV(tokens.NonceToken, prehash, nonceSize)
	if err != nil {
		return "", err
	}

	plaintext, err := canonical.Serialize(augmented)
	if err != nil {
		return "", err
	}

	ciphertext, err := cryptoprim.AEADEncrypt(cipherKey, nonce, plaintext, nil)
	if err != nil {
		return "", err
	}

	combined := append(append([]byte{}, idxBytes...), ciphertext...)
	return canonical.Base64URLNoPad(combined), nil
}

// Decrypt reverses Encrypt: splits the first 8 bytes into idx, looks up the
// seed, regenerates the key schedule, decrypts, and drops `_salt`. A miss in
// store (the seed rotated out of the FIFO-20) is reported distinctly so
// callers can redirect to root.
func Decrypt(tokens Tokens, store *SeedStore, p string) (map[string]interface{}, error) {
	combined, err := canonical.DecodeBase64URLNoPad(p)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "urlcrypto: decode p parameter", err)
	}
	if len(combined) < idxSize {
		return nil, apperr.New(apperr.KindInvalidInput, "urlcrypto: p parameter too short")
	}

	idxBytes := combined[:idxSize]
	ciphertext := combined[idxSize:]
	idx := canonical.Base64URLNoPad(idxBytes)

	prehashSeed, ok := store.get(idx)
	if !ok {
		return nil, apperr.New(apperr.KindInvalidInput, "urlcrypto: seed not found, rotated out of fifo")
	}

	prehash, err := kv.KV(tokens.HMACKey, prehashSeed, prehashSize)
	if err != nil {
		return nil, err
	}
	cipherKey, err := kv.KV(tokens.CipherToken, prehash, cipherKeySize)
	if err != nil {
		return nil, err
	}
	nonce, err := kv.KV(tokens.NonceToken, prehash, nonceSize)
	if err != nil {
		return nil, err
	}

	plaintext, err := cryptoprim.AEADDecrypt(cipherKey, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "urlcrypto: decrypt failed", err)
	}

	var params map[string]interface{}
	if err := json.Unmarshal(plaintext, &params); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "urlcrypto: decode params", err)
	}
	delete(params, "_salt")

	return params, nil
}

// DeriveTokens derives the three per-session tokens from a session's
// published Ed25519 public key hex and the server's HMAC key set, via kv
// over the pub_key plus a domain-separator string per token.
func DeriveTokens(hmacKey []byte, pubKeyHex string) (Tokens, error) {
	cipherToken, err := kv.KV(hmacKey, []byte(pubKeyHex+"|cipher"), kv.HMACKeySize)
	if err != nil {
		return Tokens{}, err
	}
	nonceToken, err := kv.KV(hmacKey, []byte(pubKeyHex+"|nonce"), kv.HMACKeySize)
	if err != nil {
		return Tokens{}, err
	}
	hmacToken, err := kv.KV(hmacKey, []byte(pubKeyHex+"|hmac"), kv.HMACKeySize)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{CipherToken: cipherToken, NonceToken: nonceToken, HMACKey: hmacToken}, nil
}
