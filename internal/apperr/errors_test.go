// Copyright (c) 2025 Justin Cranford

package apperr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
)

func TestWrap_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := apperr.Wrap(apperr.KindStorageError, "insert magic link", cause)

	require.ErrorIs(t, err, cause)
	require.True(t, apperr.Is(err, apperr.KindStorageError))
	require.False(t, apperr.Is(err, apperr.KindCryptoError))

	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindStorageError, kind)
}

func TestKindOf_NonAppError(t *testing.T) {
	t.Parallel()

	_, ok := apperr.KindOf(errors.New("plain"))
	require.False(t, ok)
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindInvalidInput, 400},
		{apperr.KindMagicLinkInvalidOrExpired, 400},
		{apperr.KindSignatureInvalid, 401},
		{apperr.KindTokenInvalid, 401},
		{apperr.KindTokenExpired, 401},
		{apperr.KindDualExpiry, 401},
		{apperr.KindRotationMismatch, 401},
		{apperr.KindStorageError, 500},
		{apperr.KindCryptoError, 500},
		{apperr.KindConfigError, 500},
	}

	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, apperr.HTTPStatus(tc.kind))
		})
	}
}

func TestSafeMessage_NeverEmpty(t *testing.T) {
	t.Parallel()

	kinds := []apperr.Kind{
		apperr.KindConfigError, apperr.KindInvalidInput, apperr.KindSignatureInvalid,
		apperr.KindTokenInvalid, apperr.KindTokenExpired, apperr.KindDualExpiry,
		apperr.KindMagicLinkInvalidOrExpired, apperr.KindRotationMismatch,
		apperr.KindStorageError, apperr.KindCryptoError,
	}
	for _, k := range kinds {
		require.NotEmpty(t, apperr.SafeMessage(k))
	}
}
