// Copyright (c) 2025 Justin Cranford

// Package canonical implements the deterministic JSON serialization used by
// every signed envelope: recursively sorted object keys,
// no insignificant whitespace, no trailing newline, arrays keep their order,
// numbers emit in Go's shortest round-tripping form.
package canonical

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"sort"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
)

// Serialize marshals v to JSON and then canonicalizes key order. v is first
// round-tripped through json.Marshal/Unmarshal so that struct tags, field
// ordering in Go source, and map ordering are all normalized identically.
func Serialize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "canonical: marshal", err)
	}

	var generic interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "canonical: decode for normalization", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SerializeMap is a convenience wrapper for map[string]interface{} payloads,
// the shape used for GET-request query-parameter signing.
func SerializeMap(m map[string]interface{}) ([]byte, error) {
	return Serialize(m)
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		return writeObject(buf, val)
	case []interface{}:
		return writeArray(buf, val)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return apperr.Wrap(apperr.KindInvalidInput, "canonical: marshal scalar", err)
		}
		buf.Write(encoded)
		return nil
	}
}

func writeObject(buf *bytes.Buffer, obj map[string]interface{}) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return apperr.Wrap(apperr.KindInvalidInput, "canonical: marshal key", err)
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeArray(buf *bytes.Buffer, arr []interface{}) error {
	buf.WriteByte('[')
	for i, el := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonical(buf, el); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// Base64URLNoPad encodes data with unpadded Base64-URL.
func Base64URLNoPad(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeBase64URLNoPad decodes an unpadded Base64-URL string.
func DecodeBase64URLNoPad(s string) ([]byte, error) {
	out, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "canonical: decode base64url", err)
	}
	return out, nil
}
