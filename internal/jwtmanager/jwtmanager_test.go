// Copyright (c) 2025 Justin Cranford

package jwtmanager_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/jwtmanager"
)

func testSecret() []byte { return bytes.Repeat([]byte{0x42}, 64) }

func TestNewManager_RejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := jwtmanager.NewManager([]byte("short"))
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindConfigError))
}

func TestMintVerify_AccessToken(t *testing.T) {
	t.Parallel()

	m, err := jwtmanager.NewManager(testSecret())
	require.NoError(t, err)

	token, expiresAt, err := m.MintAccessToken("user-id-hex", "pubkey-hex", 15*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.True(t, expiresAt.After(time.Now().UTC()))

	claims, err := m.VerifyAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-id-hex", claims.UserIDHex)
	require.Equal(t, "pubkey-hex", claims.PubKeyHex)
}

func TestMintVerify_RefreshToken(t *testing.T) {
	t.Parallel()

	m, err := jwtmanager.NewManager(testSecret())
	require.NoError(t, err)

	token, _, err := m.MintRefreshToken("user-id-hex", "pubkey-hex", 30*24*time.Hour)
	require.NoError(t, err)

	claims, err := m.VerifyRefreshToken(token)
	require.NoError(t, err)
	require.Equal(t, "pubkey-hex", claims.PubKeyHex)
}

func TestVerify_RejectsWrongKind(t *testing.T) {
	t.Parallel()

	m, err := jwtmanager.NewManager(testSecret())
	require.NoError(t, err)

	accessToken, _, err := m.MintAccessToken("u", "p", 15*time.Minute)
	require.NoError(t, err)

	_, err = m.VerifyRefreshToken(accessToken)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindTokenInvalid))
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	m1, err := jwtmanager.NewManager(testSecret())
	require.NoError(t, err)
	m2, err := jwtmanager.NewManager(bytes.Repeat([]byte{0x24}, 64))
	require.NoError(t, err)

	token, _, err := m1.MintAccessToken("u", "p", 15*time.Minute)
	require.NoError(t, err)

	_, err = m2.VerifyAccessToken(token)
	require.Error(t, err)
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	t.Parallel()

	m, err := jwtmanager.NewManager(testSecret())
	require.NoError(t, err)

	token, _, err := m.MintAccessToken("u", "p", -1*time.Minute)
	require.NoError(t, err)

	_, err = m.VerifyAccessToken(token)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindTokenExpired))
}

func TestClassifyRefreshWindow(t *testing.T) {
	t.Parallel()

	lifetime := 30 * time.Hour

	tests := []struct {
		name      string
		remaining time.Duration
		want      jwtmanager.RefreshWindow
	}{
		{"fresh_window", 25 * time.Hour, jwtmanager.WindowFresh},
		{"rotate_window", 5 * time.Hour, jwtmanager.WindowRotate},
		{"exactly_two_thirds_boundary_rotates", 20 * time.Hour, jwtmanager.WindowRotate},
		{"expired", -time.Minute, jwtmanager.WindowExpired},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			expiresAt := time.Now().UTC().Add(tc.remaining)
			got := jwtmanager.ClassifyRefreshWindow(expiresAt, lifetime)
			require.Equal(t, tc.want, got)
		})
	}
}
