// Copyright (c) 2025 Justin Cranford

package privkeycontext_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/privkeycontext"
)

func randomContext(t *testing.T) []byte {
	t.Helper()
	ctx := make([]byte, privkeycontext.PlaintextSize)
	_, err := rand.Read(ctx)
	require.NoError(t, err)
	return ctx
}

func TestDeriveIdentityKeys_Deterministic(t *testing.T) {
	t.Parallel()

	privkeyContext := randomContext(t)

	first, err := privkeycontext.DeriveIdentityKeys("user@example.test", privkeyContext)
	require.NoError(t, err)
	second, err := privkeycontext.DeriveIdentityKeys("user@example.test", privkeyContext)
	require.NoError(t, err)

	require.Equal(t, first.Ed25519.PublicKey, second.Ed25519.PublicKey)
	require.Equal(t, first.Ed25519.PrivateKey, second.Ed25519.PrivateKey)
	require.Equal(t, first.X25519.PublicKey, second.X25519.PublicKey)
	require.Equal(t, first.X25519.PrivateKey, second.X25519.PrivateKey)
}

func TestDeriveIdentityKeys_DistinctInputsDistinctKeys(t *testing.T) {
	t.Parallel()

	privkeyContext := randomContext(t)

	base, err := privkeycontext.DeriveIdentityKeys("user@example.test", privkeyContext)
	require.NoError(t, err)

	otherEmail, err := privkeycontext.DeriveIdentityKeys("other@example.test", privkeyContext)
	require.NoError(t, err)
	require.NotEqual(t, base.Ed25519.PublicKey, otherEmail.Ed25519.PublicKey)
	require.NotEqual(t, base.X25519.PublicKey, otherEmail.X25519.PublicKey)

	otherContext, err := privkeycontext.DeriveIdentityKeys("user@example.test", randomContext(t))
	require.NoError(t, err)
	require.NotEqual(t, base.Ed25519.PublicKey, otherContext.Ed25519.PublicKey)
}

func TestDeriveIdentityKeys_EdAndXAreIndependent(t *testing.T) {
	t.Parallel()

	keys, err := privkeycontext.DeriveIdentityKeys("user@example.test", randomContext(t))
	require.NoError(t, err)

	require.NotEqual(t, keys.Ed25519.PrivateKey.Seed(), keys.X25519.PrivateKey[:])
}

func TestDeriveIdentityKeys_RejectsBadInputs(t *testing.T) {
	t.Parallel()

	_, err := privkeycontext.DeriveIdentityKeys("", randomContext(t))
	require.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = privkeycontext.DeriveIdentityKeys("user@example.test", make([]byte, 32))
	require.True(t, apperr.Is(err, apperr.KindCryptoError))
}
