// Copyright (c) 2025 Justin Cranford

// Package apperr implements the error taxonomy of the cryptographic
// authentication core. Every failure in the internal packages is returned as
// a *Error wrapping one of the Kind values below; only the HTTP layer
// translates a Kind into a status code and a client-safe message.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories the core can produce.
type Kind string

const (
	KindConfigError               Kind = "config_error"
	KindInvalidInput              Kind = "invalid_input"
	KindSignatureInvalid          Kind = "signature_invalid"
	KindTokenInvalid              Kind = "token_invalid"
	KindTokenExpired              Kind = "token_expired"
	KindDualExpiry                Kind = "dual_expiry"
	KindMagicLinkInvalidOrExpired Kind = "magic_link_invalid_or_expired"
	KindRotationMismatch          Kind = "rotation_mismatch"
	KindStorageError              Kind = "storage_error"
	KindCryptoError               Kind = "crypto_error"
)

// Error is the concrete error type returned by every internal package.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error of the given kind wrapping err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err (or any error in its chain) is an *Error of kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, returning ok=false if err is not an *Error.
func KindOf(err error) (Kind, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return "", false
}

// HTTPStatus maps a Kind to its status code.
// Kinds that are "fatal" at startup (ConfigError) have no meaningful HTTP
// status and map to 500 defensively — they should never reach a handler.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput, KindMagicLinkInvalidOrExpired:
		return 400
	case KindSignatureInvalid, KindTokenInvalid, KindTokenExpired, KindDualExpiry:
		return 401
	case KindRotationMismatch:
		return 401
	case KindStorageError, KindCryptoError, KindConfigError:
		return 500
	default:
		return 500
	}
}

// SafeMessage returns the message that is allowed to leave the process for
// a given Kind. It never includes the wrapped cause, which may contain
// storage or crypto library internals.
func SafeMessage(kind Kind) string {
	switch kind {
	case KindInvalidInput:
		return "invalid input"
	case KindSignatureInvalid:
		return "signature invalid"
	case KindTokenInvalid:
		return "token invalid"
	case KindTokenExpired:
		return "token expired"
	case KindDualExpiry:
		return "session expired, please log in again"
	case KindMagicLinkInvalidOrExpired:
		return "magic link invalid or expired"
	case KindRotationMismatch:
		return "rotation mismatch"
	case KindStorageError:
		return "internal storage error"
	case KindCryptoError:
		return "internal error"
	case KindConfigError:
		return "configuration error"
	default:
		return "internal error"
	}
}
