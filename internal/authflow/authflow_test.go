// Copyright (c) 2025 Justin Cranford

package authflow_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/authflow"
	"github.com/arkaitz-dev/hashrand-sub003/internal/config"
	"github.com/arkaitz-dev/hashrand-sub003/internal/cryptoprim"
	"github.com/arkaitz-dev/hashrand-sub003/internal/envelope"
	"github.com/arkaitz-dev/hashrand-sub003/internal/repository"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		AccessTokenDuration:  time.Minute,
		RefreshTokenDuration: 9 * time.Minute,
		MagicLinkDuration:    5 * time.Minute,
		Environment:          config.EnvDevelopment,
		BindAddress:          "0.0.0.0",
		Port:                 8080,
		DatabaseType:         "sqlite",
		DatabaseURL:          "file::memory:?cache=shared",
	}
	for i, dst := range []*[config.HMACKeySize]byte{
		&cfg.JWTSecret, &cfg.MagicLinkHMACKey, &cfg.UserIDHMACKey,
		&cfg.Argon2Salt, &cfg.UserIDArgon2Compression, &cfg.ChaChaEncryptionKey,
	} {
		copy(dst[:], bytes.Repeat([]byte{byte(0x10 + i)}, config.HMACKeySize))
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func newOrchestrator(t *testing.T) *authflow.Orchestrator {
	t.Helper()
	repo := repository.RequireNewForTest(context.Background())
	t.Cleanup(func() { _ = repo.Shutdown() })
	orch, err := authflow.New(testConfig(t), repo)
	require.NoError(t, err)
	return orch
}

func clientKeypair(t *testing.T) (*cryptoprim.Ed25519Keypair, *cryptoprim.X25519Keypair) {
	t.Helper()
	ed, err := cryptoprim.GenerateEd25519Keypair()
	require.NoError(t, err)
	x, err := cryptoprim.GenerateX25519Keypair()
	require.NoError(t, err)
	return ed, x
}

// extractMagicLinkToken pulls the raw base58 token back out of the dev-only
// URL the Login response carries (?magiclink=<token>).
func extractMagicLinkToken(t *testing.T, url string) string {
	t.Helper()
	const marker = "?magiclink="
	idx := bytes.Index([]byte(url), []byte(marker))
	require.GreaterOrEqual(t, idx, 0)
	return url[idx+len(marker):]
}

func TestLogin_IssuesMagicLinkAndServerPubKey(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	ed, x := clientKeypair(t)

	out, err := orch.Login(context.Background(), authflow.LoginRequest{
		Email:            "User@Example.com",
		UIHost:           "https://app.example.com",
		PubKeyEd25519Hex: hex.EncodeToString(ed.PublicKey),
		PubKeyX25519Hex:  hex.EncodeToString(x.PublicKey[:]),
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Payload["server_pub_key"])
	require.NotNil(t, out.SigningKey)
	require.Contains(t, out.Payload, "magiclink_url_dev_only")
}

func TestLogin_RejectsMissingFields(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	_, err := orch.Login(context.Background(), authflow.LoginRequest{Email: ""})
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindInvalidInput))
}

func TestRedeemMagicLink_FirstLoginCreatesUserAndPrivkeyContext(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	ed, x := clientKeypair(t)

	loginOut, err := orch.Login(context.Background(), authflow.LoginRequest{
		Email:            "new-user@example.com",
		UIHost:           "https://app.example.com",
		PubKeyEd25519Hex: hex.EncodeToString(ed.PublicKey),
		PubKeyX25519Hex:  hex.EncodeToString(x.PublicKey[:]),
	})
	require.NoError(t, err)

	token := extractMagicLinkToken(t, loginOut.Payload["magiclink_url_dev_only"].(string))

	redeemOut, err := orch.RedeemMagicLink(context.Background(), token)
	require.NoError(t, err)
	require.NotEmpty(t, redeemOut.Payload["user_id"])
	require.NotEmpty(t, redeemOut.Payload["access_token"])
	require.NotEmpty(t, redeemOut.RefreshToken)
	require.Contains(t, redeemOut.Payload, "encrypted_privkey_context")
}

func TestRedeemMagicLink_IsAtMostOnce(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	ed, _ := clientKeypair(t)

	loginOut, err := orch.Login(context.Background(), authflow.LoginRequest{
		Email:            "once-only@example.com",
		UIHost:           "https://app.example.com",
		PubKeyEd25519Hex: hex.EncodeToString(ed.PublicKey),
	})
	require.NoError(t, err)
	token := extractMagicLinkToken(t, loginOut.Payload["magiclink_url_dev_only"].(string))

	_, err = orch.RedeemMagicLink(context.Background(), token)
	require.NoError(t, err)

	_, err = orch.RedeemMagicLink(context.Background(), token)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindMagicLinkInvalidOrExpired))
}

func TestRedeemMagicLink_UnknownTokenFails(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	_, err := orch.RedeemMagicLink(context.Background(), cryptoprim.Base58Encode([]byte("not-a-real-token-at-all-padded!!")))
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindMagicLinkInvalidOrExpired))
}

func TestValidateAccessToken_AcceptsFreshlyMintedToken(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	ed, _ := clientKeypair(t)

	loginOut, err := orch.Login(context.Background(), authflow.LoginRequest{
		Email:            "access-check@example.com",
		UIHost:           "https://app.example.com",
		PubKeyEd25519Hex: hex.EncodeToString(ed.PublicKey),
	})
	require.NoError(t, err)
	token := extractMagicLinkToken(t, loginOut.Payload["magiclink_url_dev_only"].(string))

	redeemOut, err := orch.RedeemMagicLink(context.Background(), token)
	require.NoError(t, err)

	claims, err := orch.ValidateAccessToken(redeemOut.Payload["access_token"].(string))
	require.NoError(t, err)
	require.Equal(t, redeemOut.Payload["user_id"], claims.UserIDHex)
}

func TestRefresh_FreshWindowReissuesAccessTokenOnly(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	ed, _ := clientKeypair(t)
	edPubHex := hex.EncodeToString(ed.PublicKey)

	loginOut, err := orch.Login(context.Background(), authflow.LoginRequest{
		Email:            "refresh-fresh@example.com",
		UIHost:           "https://app.example.com",
		PubKeyEd25519Hex: edPubHex,
	})
	require.NoError(t, err)
	token := extractMagicLinkToken(t, loginOut.Payload["magiclink_url_dev_only"].(string))

	redeemOut, err := orch.RedeemMagicLink(context.Background(), token)
	require.NoError(t, err)

	params := map[string]interface{}{"action": "refresh"}
	sigHex, err := signParams(ed, params)
	require.NoError(t, err)

	refreshOut, err := orch.Refresh(context.Background(), authflow.RefreshRequest{
		RefreshCookie:  redeemOut.RefreshToken,
		NewPubKeyHex:   edPubHex,
		RequestPayload: params,
		RequestSigHex:  sigHex,
	})
	require.NoError(t, err)
	require.False(t, refreshOut.Rotated)
	require.Empty(t, refreshOut.NewRefreshToken)
	require.NotEmpty(t, refreshOut.Payload["access_token"])
}

func TestRefresh_RotateWindowBindsNewKeyAndReissuesRefreshToken(t *testing.T) {
	t.Parallel()

	ed, _ := clientKeypair(t)
	edPubHex := hex.EncodeToString(ed.PublicKey)

	// A short refresh lifetime lets the test cross the 1/3-elapsed
	// threshold with a real sleep rather than forging claims directly: the
	// rotation decision is a pure function of elapsed-vs-lifetime, so
	// sleeping past 1/3 of the lifetime deterministically lands in
	// WindowRotate regardless of scheduler jitter.
	repo := repository.RequireNewForTest(context.Background())
	t.Cleanup(func() { _ = repo.Shutdown() })
	cfg := testConfig(t)
	cfg.AccessTokenDuration = 500 * time.Millisecond
	cfg.RefreshTokenDuration = 3 * time.Second
	require.NoError(t, cfg.Validate())
	rotatingOrch, err := authflow.New(cfg, repo)
	require.NoError(t, err)

	loginOut, err := rotatingOrch.Login(context.Background(), authflow.LoginRequest{
		Email:            "refresh-rotate@example.com",
		UIHost:           "https://app.example.com",
		PubKeyEd25519Hex: edPubHex,
	})
	require.NoError(t, err)
	token := extractMagicLinkToken(t, loginOut.Payload["magiclink_url_dev_only"].(string))

	redeemOut, err := rotatingOrch.RedeemMagicLink(context.Background(), token)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	newEd, err := cryptoprim.GenerateEd25519Keypair()
	require.NoError(t, err)
	newEdPubHex := hex.EncodeToString(newEd.PublicKey)

	params := map[string]interface{}{"action": "refresh"}
	sigHex, err := signParams(ed, params)
	require.NoError(t, err)

	refreshOut, err := rotatingOrch.Refresh(context.Background(), authflow.RefreshRequest{
		RefreshCookie:  redeemOut.RefreshToken,
		NewPubKeyHex:   newEdPubHex,
		RequestPayload: params,
		RequestSigHex:  sigHex,
	})
	require.NoError(t, err)
	require.True(t, refreshOut.Rotated)
	require.NotEmpty(t, refreshOut.NewRefreshToken)
	require.Equal(t, newEdPubHex, mustClaimsPubKey(t, rotatingOrch, refreshOut.Payload["access_token"].(string)))
}

func TestRefresh_RejectsSignatureFromWrongKey(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	ed, _ := clientKeypair(t)
	impostor, _ := clientKeypair(t)
	edPubHex := hex.EncodeToString(ed.PublicKey)

	loginOut, err := orch.Login(context.Background(), authflow.LoginRequest{
		Email:            "wrong-sig@example.com",
		UIHost:           "https://app.example.com",
		PubKeyEd25519Hex: edPubHex,
	})
	require.NoError(t, err)
	token := extractMagicLinkToken(t, loginOut.Payload["magiclink_url_dev_only"].(string))

	redeemOut, err := orch.RedeemMagicLink(context.Background(), token)
	require.NoError(t, err)

	params := map[string]interface{}{"action": "refresh"}
	sigHex, err := signParams(impostor, params)
	require.NoError(t, err)

	_, err = orch.Refresh(context.Background(), authflow.RefreshRequest{
		RefreshCookie:  redeemOut.RefreshToken,
		NewPubKeyHex:   edPubHex,
		RequestPayload: params,
		RequestSigHex:  sigHex,
	})
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindSignatureInvalid))
}

func TestLogout_ProducesSignedAcknowledgement(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	ed, _ := clientKeypair(t)

	out, err := orch.Logout(hex.EncodeToString(ed.PublicKey))
	require.NoError(t, err)
	require.Equal(t, "logged out", out.Payload["message"])
}

func TestURLCryptoTokens_DeterministicPerPubKey(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	ed, _ := clientKeypair(t)
	pubHex := hex.EncodeToString(ed.PublicKey)

	t1, err := orch.URLCryptoTokens(pubHex)
	require.NoError(t, err)
	t2, err := orch.URLCryptoTokens(pubHex)
	require.NoError(t, err)
	require.Equal(t, t1, t2)
}

// signParams mirrors what a client does for a GET-style signed request:
// canonicalize then Ed25519-sign the Base64 string.
func signParams(kp *cryptoprim.Ed25519Keypair, params map[string]interface{}) (string, error) {
	return envelope.SignQueryParams(kp.PrivateKey, params)
}

func mustClaimsPubKey(t *testing.T, orch *authflow.Orchestrator, accessToken string) string {
	t.Helper()
	claims, err := orch.ValidateAccessToken(accessToken)
	require.NoError(t, err)
	return claims.PubKeyHex
}
