// Copyright (c) 2025 Justin Cranford

// Package jwtmanager mints and validates the HMAC-signed access and refresh
// tokens behind the 2/3 rotation protocol. Every token
// carries the Ed25519 public key it is bound to in the pub_key_hex claim,
// so the server never keeps a session table — sessions exist only as the
// binding between a token and the key that was current when it was minted.
package jwtmanager

import (
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
)

const (
	claimUserID = "user_id"
	claimPubKey = "pub_key_hex"
	claimKind   = "kind"
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// Manager mints and verifies tokens under a single 64-byte HMAC secret
// (the JWT_SECRET configuration key).
type Manager struct {
	secret []byte
}

// NewManager constructs a Manager. secret must be exactly 64 bytes.
func NewManager(secret []byte) (*Manager, error) {
	if len(secret) != 64 {
		return nil, apperr.New(apperr.KindConfigError, "jwtmanager: secret must be 64 bytes")
	}
	return &Manager{secret: secret}, nil
}

// Claims is the decoded, validated result of verifying a token.
type Claims struct {
	UserIDHex string
	PubKeyHex string
	ExpiresAt time.Time
}

func (m *Manager) mint(userIDHex, pubKeyHex, kind string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	token, err := jwt.NewBuilder().
		Claim(claimUserID, userIDHex).
		Claim(claimPubKey, pubKeyHex).
		Claim(claimKind, kind).
		IssuedAt(now).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.KindCryptoError, "jwtmanager: build token", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS512, m.secret))
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.KindCryptoError, "jwtmanager: sign token", err)
	}

	return string(signed), expiresAt, nil
}

// MintAccessToken mints a short-TTL access token bound to pubKeyHex.
func (m *Manager) MintAccessToken(userIDHex, pubKeyHex string, ttl time.Duration) (string, time.Time, error) {
	return m.mint(userIDHex, pubKeyHex, kindAccess, ttl)
}

// MintRefreshToken mints a longer-TTL refresh token bound to pubKeyHex,
// carried by the client as an HttpOnly Secure SameSite=Strict cookie.
func (m *Manager) MintRefreshToken(userIDHex, pubKeyHex string, ttl time.Duration) (string, time.Time, error) {
	return m.mint(userIDHex, pubKeyHex, kindRefresh, ttl)
}

func (m *Manager) verify(tokenString, expectKind string) (*Claims, error) {
	token, err := jwt.Parse([]byte(tokenString), jwt.WithKey(jwa.HS512, m.secret), jwt.WithValidate(true))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTokenInvalid, "jwtmanager: parse/verify token", err)
	}

	kind, ok := token.Get(claimKind)
	if !ok || kind != expectKind {
		return nil, apperr.New(apperr.KindTokenInvalid, "jwtmanager: unexpected token kind")
	}

	userIDHex, ok := token.Get(claimUserID)
	if !ok {
		return nil, apperr.New(apperr.KindTokenInvalid, "jwtmanager: missing user_id claim")
	}
	pubKeyHex, ok := token.Get(claimPubKey)
	if !ok {
		return nil, apperr.New(apperr.KindTokenInvalid, "jwtmanager: missing pub_key_hex claim")
	}

	return &Claims{
		UserIDHex: userIDHex.(string),
		PubKeyHex: pubKeyHex.(string),
		ExpiresAt: token.Expiration(),
	}, nil
}

// VerifyAccessToken validates signature, kind, and exp for an access token.
// An expired token surfaces as KindTokenExpired rather than the generic
// jwx validation error, so callers can distinguish the 2/3-window decision
// from outright forgery.
func (m *Manager) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims, err := m.verify(tokenString, kindAccess)
	if err != nil {
		if isExpiredErr(tokenString, m.secret) {
			return nil, apperr.New(apperr.KindTokenExpired, "jwtmanager: access token expired")
		}
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken validates signature, kind, and exp for a refresh token.
func (m *Manager) VerifyRefreshToken(tokenString string) (*Claims, error) {
	claims, err := m.verify(tokenString, kindRefresh)
	if err != nil {
		if isExpiredErr(tokenString, m.secret) {
			return nil, apperr.New(apperr.KindTokenExpired, "jwtmanager: refresh token expired")
		}
		return nil, err
	}
	return claims, nil
}

// isExpiredErr re-parses without exp validation to distinguish "expired"
// from "malformed/forged" for the caller's error-kind mapping.
func isExpiredErr(tokenString string, secret []byte) bool {
	token, err := jwt.Parse([]byte(tokenString), jwt.WithKey(jwa.HS512, secret), jwt.WithValidate(false))
	if err != nil {
		return false
	}
	return time.Now().UTC().After(token.Expiration())
}

// RefreshWindow classifies a refresh token's remaining lifetime into the
// 1/3 vs 2/3 rotation decision. The decision is a pure function
// of the token's exp and the configured refresh TTL, so concurrent refresh
// requests against the same cookie always agree.
type RefreshWindow int

const (
	// WindowFresh ("1/3"): remaining > 2*third, issue access token only.
	WindowFresh RefreshWindow = iota
	// WindowRotate ("2/3"): remaining <= 2*third, full key rotation.
	WindowRotate
	// WindowExpired: both access and refresh are unusable.
	WindowExpired
)

// ClassifyRefreshWindow computes the 1/3 vs 2/3 decision for a refresh token
// expiring at expiresAt, given the full refresh-token lifetime.
func ClassifyRefreshWindow(expiresAt time.Time, refreshLifetime time.Duration) RefreshWindow {
	remaining := time.Until(expiresAt)
	if remaining <= 0 {
		return WindowExpired
	}
	third := refreshLifetime / 3
	if remaining > 2*third {
		return WindowFresh
	}
	return WindowRotate
}
