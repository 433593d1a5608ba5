// Copyright (c) 2025 Justin Cranford

package canonical_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arkaitz-dev/hashrand-sub003/internal/canonical"
)

// TestCanonicalProperties verifies the serialization invariants over
// generated objects rather than fixed examples.
func TestCanonicalProperties(t *testing.T) {
	t.Parallel()

	params := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(params)

	objGen := gen.MapOf(gen.AlphaString(), gen.AnyString())

	// Property: canonical(canonical(v)) == canonical(v) — re-parsing a
	// canonical document and serializing again is a fixed point.
	properties.Property("serialization is idempotent", prop.ForAll(
		func(obj map[string]string) bool {
			first, err := canonical.Serialize(obj)
			if err != nil {
				return false
			}
			var reparsed interface{}
			if err := json.Unmarshal(first, &reparsed); err != nil {
				return false
			}
			second, err := canonical.Serialize(reparsed)
			if err != nil {
				return false
			}
			return bytes.Equal(first, second)
		},
		objGen,
	))

	// Property: insertion order never changes output — a copy of the map
	// built by inserting entries in a different order serializes
	// identically.
	properties.Property("output is independent of insertion order", prop.ForAll(
		func(obj map[string]string) bool {
			reversed := make(map[string]interface{}, len(obj))
			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			for i := len(keys) - 1; i >= 0; i-- {
				reversed[keys[i]] = obj[keys[i]]
			}
			first, err1 := canonical.Serialize(obj)
			second, err2 := canonical.SerializeMap(reversed)
			if err1 != nil || err2 != nil {
				return false
			}
			return bytes.Equal(first, second)
		},
		objGen,
	))

	// Property: output round-trips through encoding/json with the same
	// key/value content.
	properties.Property("canonical output is valid JSON preserving content", prop.ForAll(
		func(obj map[string]string) bool {
			out, err := canonical.Serialize(obj)
			if err != nil {
				return false
			}
			var decoded map[string]string
			if err := json.Unmarshal(out, &decoded); err != nil {
				return false
			}
			if len(decoded) != len(obj) {
				return false
			}
			for k, v := range obj {
				if decoded[k] != v {
					return false
				}
			}
			return true
		},
		objGen,
	))

	properties.TestingRun(t)
}
