// Copyright (c) 2025 Justin Cranford

// Package envelope implements the SignedRequest / SignedResponse wrapper
// : canonical JSON payload, Base64-URL encoding, Ed25519
// signature over the Base64 string (not the raw JSON), and the companion
// GET-request query-parameter signing scheme.
package envelope

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/canonical"
	"github.com/arkaitz-dev/hashrand-sub003/internal/cryptoprim"
)

// Wire is the on-the-wire shape of both SignedRequest and SignedResponse:
// { "payload": <base64url_nopad>, "signature": <hex_64_bytes> }.
type Wire struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// Sign builds a Wire envelope for payload, signing the Base64 string with
// priv.
func Sign(priv ed25519.PrivateKey, payload interface{}) (*Wire, error) {
	jsonBytes, err := canonical.Serialize(payload)
	if err != nil {
		return nil, err
	}

	b64 := canonical.Base64URLNoPad(jsonBytes)
	sig := cryptoprim.Sign(priv, []byte(b64))

	return &Wire{
		Payload:   b64,
		Signature: hex.EncodeToString(sig),
	}, nil
}

// Verify checks a Wire envelope's signature under pub and returns the
// decoded JSON payload bytes. Callers json.Unmarshal the result into the
// concrete payload type they expect. Any failure is KindSignatureInvalid,
// so a failed verification is never mistaken for malformed input.
func Verify(pub ed25519.PublicKey, w *Wire) ([]byte, error) {
	sig, err := hex.DecodeString(w.Signature)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSignatureInvalid, "envelope: decode signature hex", err)
	}

	if !cryptoprim.Verify(pub, []byte(w.Payload), sig) {
		return nil, apperr.New(apperr.KindSignatureInvalid, "envelope: signature verification failed")
	}

	jsonBytes, err := canonical.DecodeBase64URLNoPad(w.Payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSignatureInvalid, "envelope: decode payload base64", err)
	}

	return jsonBytes, nil
}

// SignQueryParams builds the `signature` query-parameter value for a GET
// request: canonical_serialize(params), then the same
// Base64-URL-then-sign steps as Sign, but returning only the
// hex signature since the params themselves travel as ordinary query string
// values, not inside a payload field.
func SignQueryParams(priv ed25519.PrivateKey, params map[string]interface{}) (string, error) {
	jsonBytes, err := canonical.SerializeMap(params)
	if err != nil {
		return "", err
	}
	b64 := canonical.Base64URLNoPad(jsonBytes)
	sig := cryptoprim.Sign(priv, []byte(b64))
	return hex.EncodeToString(sig), nil
}

// VerifyQueryParams checks a GET request's `signature` query parameter
// against the remaining params, canonicalized the same way the client did.
func VerifyQueryParams(pub ed25519.PublicKey, params map[string]interface{}, signatureHex string) error {
	jsonBytes, err := canonical.SerializeMap(params)
	if err != nil {
		return err
	}
	b64 := canonical.Base64URLNoPad(jsonBytes)

	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return apperr.Wrap(apperr.KindSignatureInvalid, "envelope: decode query signature hex", err)
	}

	if !cryptoprim.Verify(pub, []byte(b64), sig) {
		return apperr.New(apperr.KindSignatureInvalid, "envelope: query signature verification failed")
	}
	return nil
}
