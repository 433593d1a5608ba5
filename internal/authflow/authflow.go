// Copyright (c) 2025 Justin Cranford

// Package authflow is the orchestrator that sequences
// magiclink, userid, session, jwtmanager, privkeycontext, and urlcrypto into
// the three state machines the HTTP surface exposes: login issuance, magic
// link redemption, and refresh/rotation. It enforces the ordering invariant
// of the protocol: verify inbound signature -> validate token -> mutate
// persistent state -> mint/encrypt outputs -> sign outbound response.
package authflow

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"time"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/canonical"
	"github.com/arkaitz-dev/hashrand-sub003/internal/config"
	"github.com/arkaitz-dev/hashrand-sub003/internal/cryptoprim"
	"github.com/arkaitz-dev/hashrand-sub003/internal/domain"
	"github.com/arkaitz-dev/hashrand-sub003/internal/envelope"
	"github.com/arkaitz-dev/hashrand-sub003/internal/jwtmanager"
	"github.com/arkaitz-dev/hashrand-sub003/internal/magiclink"
	"github.com/arkaitz-dev/hashrand-sub003/internal/privkeycontext"
	"github.com/arkaitz-dev/hashrand-sub003/internal/repository"
	"github.com/arkaitz-dev/hashrand-sub003/internal/session"
	"github.com/arkaitz-dev/hashrand-sub003/internal/urlcrypto"
	"github.com/arkaitz-dev/hashrand-sub003/internal/userid"
)

// Orchestrator ties the crypto-core packages to a repository.Provider and
// the process-wide Config, exposing one method per HTTP endpoint.
type Orchestrator struct {
	cfg  *config.Config
	repo *repository.Provider
	jwt  *jwtmanager.Manager
}

// New constructs an Orchestrator from a validated Config and an open
// repository.Provider.
func New(cfg *config.Config, repo *repository.Provider) (*Orchestrator, error) {
	jwtMgr, err := jwtmanager.NewManager(cfg.JWTSecret[:])
	if err != nil {
		return nil, err
	}
	return &Orchestrator{cfg: cfg, repo: repo, jwt: jwtMgr}, nil
}

func (o *Orchestrator) magicLinkKeys() magiclink.Keys {
	return magiclink.Keys{MagicLinkHMAC: o.cfg.MagicLinkHMACKey[:], ChaChaEncryption: o.cfg.ChaChaEncryptionKey[:]}
}

func (o *Orchestrator) userIDKeys() userid.Keys {
	return userid.Keys{
		UserIDHMAC:              o.cfg.UserIDHMACKey[:],
		Argon2Salt:              o.cfg.Argon2Salt[:],
		UserIDArgon2Compression: o.cfg.UserIDArgon2Compression[:],
	}
}

// sessionMasterKey roots the per-client server session keypair derivation
// (internal/session). Reusing ChaChaEncryptionKey here, rather than adding a
// seventh server secret, follows the same precedent as deriving the
// URL-parameter encryption tokens from a session's pub_key.
func (o *Orchestrator) sessionMasterKey() []byte { return o.cfg.ChaChaEncryptionKey[:] }

func (o *Orchestrator) masterKeypair() (*cryptoprim.X25519Keypair, error) {
	return privkeycontext.DeriveMasterKeypair(o.cfg.UserIDArgon2Compression[:])
}

// DecodeEd25519PubKeyHex parses a hex-encoded Ed25519 public key, the shape
// every pub_key / pub_key_hex field in the wire protocol uses.
func DecodeEd25519PubKeyHex(s string) (ed25519.PublicKey, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "authflow: decode pub key hex", err)
	}
	if len(decoded) != cryptoprim.Ed25519PublicKeySize {
		return nil, apperr.New(apperr.KindInvalidInput, "authflow: pub key must be 32 bytes")
	}
	return ed25519.PublicKey(decoded), nil
}

func decodeX25519PubKeyHex(s string) ([cryptoprim.X25519KeySize]byte, error) {
	var out [cryptoprim.X25519KeySize]byte
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return out, apperr.Wrap(apperr.KindInvalidInput, "authflow: decode x25519 pub key hex", err)
	}
	if len(decoded) != cryptoprim.X25519KeySize {
		return out, apperr.New(apperr.KindInvalidInput, "authflow: x25519 pub key must be 32 bytes")
	}
	copy(out[:], decoded)
	return out, nil
}

// SignedOutput is what every orchestrator method returns instead of a signed
// envelope: the plain payload plus the private key the HTTP layer must sign
// it with. Keeping signing at the HTTP boundary means the orchestrator never
// needs to know about Fiber, cookies, or JSON content-types.
type SignedOutput struct {
	Payload    map[string]interface{}
	SigningKey ed25519.PrivateKey
}

// ---- Login issuance --------------------------------------------------

// LoginRequest is the decoded payload of POST /login.
type LoginRequest struct {
	Email            string
	UIHost           string
	Next             string
	EmailLang        string
	PubKeyEd25519Hex string
	PubKeyX25519Hex  string
}

// Login issues a magic link for req and returns the first signed response
// of the session. The response is signed with the session keypair
// derived from the client's freshly announced pub_key_ed25519 — a
// trust-on-first-use bootstrap, since no previously cached server key
// exists yet for this client.
func (o *Orchestrator) Login(ctx context.Context, req LoginRequest) (*SignedOutput, error) {
	if req.Email == "" || req.PubKeyEd25519Hex == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "authflow: email and pub_key are required")
	}

	intent := magiclink.Intent{
		Email:        userid.Normalize(req.Email),
		UIHost:       req.UIHost,
		Next:         req.Next,
		EmailLang:    req.EmailLang,
		PubKey:       req.PubKeyEd25519Hex,
		PubKeyX25519: req.PubKeyX25519Hex,
	}

	issued, err := magiclink.Issue(o.magicLinkKeys(), intent, o.cfg.MagicLinkDuration)
	if err != nil {
		return nil, err
	}

	txErr := o.repo.WithTransaction(ctx, repository.AutoCommit, func(tx *repository.Transaction) error {
		return tx.CreateMagicLink(issued.Row)
	})
	if txErr != nil {
		return nil, txErr
	}

	serverKeypair, err := session.DeriveServerKeypair(o.sessionMasterKey(), req.PubKeyEd25519Hex)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"server_pub_key": hex.EncodeToString(serverKeypair.Ed25519.PublicKey),
		"message":        "if an account exists for this address, a magic link has been sent",
	}
	if !o.cfg.IsProduction() {
		payload["magiclink_url_dev_only"] = issued.URL
	}

	return &SignedOutput{Payload: payload, SigningKey: serverKeypair.Ed25519.PrivateKey}, nil
}

// ---- Magic link redemption -------------------------------------------

// RedeemResult is the result of a successful POST /login/magiclink/.
// ClientPubKeyHex is the Ed25519 key the minted tokens are bound to (the
// one sealed inside the magic link at issuance); the HTTP layer verifies
// the redemption request's envelope signature against it.
type RedeemResult struct {
	SignedOutput
	ClientPubKeyHex  string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RedeemMagicLink consumes rawTokenB58: look up and
// delete the row (at-most-once), decrypt the intent, derive user_id, upsert
// the user, create privkey_context on first login, mint an access+refresh
// pair bound to the announced pub_key, and deliver privkey_context
// encrypted for this session over ECDH.
func (o *Orchestrator) RedeemMagicLink(ctx context.Context, rawTokenB58 string) (*RedeemResult, error) {
	tokenHash, err := magiclink.TokenHash(o.magicLinkKeys(), rawTokenB58)
	if err != nil {
		return nil, err
	}

	var row *domain.MagicLink
	txErr := o.repo.WithTransaction(ctx, repository.ReadWrite, func(tx *repository.Transaction) error {
		fetched, getErr := tx.GetAndDeleteMagicLink(tokenHash)
		if getErr != nil {
			return getErr
		}
		row = fetched
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	if row == nil {
		return nil, apperr.New(apperr.KindMagicLinkInvalidOrExpired, "authflow: magic link not found")
	}

	intent, err := magiclink.Redeem(o.magicLinkKeys(), rawTokenB58, row)
	if err != nil {
		return nil, err
	}

	userID, err := userid.Derive(o.userIDKeys(), intent.Email)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	var plaintext []byte
	txErr = o.repo.WithTransaction(ctx, repository.ReadWrite, func(tx *repository.Transaction) error {
		if upsertErr := tx.UpsertUser(&domain.User{UserID: userID, LoggedIn: true}); upsertErr != nil {
			return upsertErr
		}

		dbIndex, idxErr := privkeycontext.DBIndex(o.cfg.UserIDArgon2Compression[:], userID)
		if idxErr != nil {
			return idxErr
		}

		existing, getErr := tx.GetPrivkeyContext(dbIndex)
		if getErr != nil {
			return getErr
		}

		master, masterErr := o.masterKeypair()
		if masterErr != nil {
			return masterErr
		}

		if existing == nil {
			generated, genErr := privkeycontext.Generate()
			if genErr != nil {
				return genErr
			}
			ciphertext, ephemeralPub, encErr := privkeycontext.EncryptAtRest(master.PublicKey, generated)
			if encErr != nil {
				return encErr
			}
			if createErr := tx.CreatePrivkeyContext(&domain.PrivkeyContext{
				DBIndex:                   dbIndex,
				EncryptedPrivkey:          ciphertext,
				EncryptionEphemeralPubKey: ephemeralPub[:],
				CreatedYear:               now.Year(),
			}); createErr != nil {
				return createErr
			}
			plaintext = generated
			return nil
		}

		var ephemeralPub [cryptoprim.X25519KeySize]byte
		copy(ephemeralPub[:], existing.EncryptionEphemeralPubKey)
		decrypted, decErr := privkeycontext.DecryptAtRest(master.PrivateKey, ephemeralPub, existing.EncryptedPrivkey)
		if decErr != nil {
			return decErr
		}
		plaintext = decrypted
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	serverKeypair, err := session.DeriveServerKeypair(o.sessionMasterKey(), intent.PubKey)
	if err != nil {
		return nil, err
	}

	userIDHex := hex.EncodeToString(userID)

	accessToken, accessExp, err := o.jwt.MintAccessToken(userIDHex, intent.PubKey, o.cfg.AccessTokenDuration)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshExp, err := o.jwt.MintRefreshToken(userIDHex, intent.PubKey, o.cfg.RefreshTokenDuration)
	if err != nil {
		return nil, err
	}

	if recordErr := o.recordSessionPubKeys(ctx, userID, intent.PubKey, intent.PubKeyX25519); recordErr != nil {
		return nil, recordErr
	}

	urlTokens, err := urlcrypto.DeriveTokens(o.cfg.ChaChaEncryptionKey[:], intent.PubKey)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"user_id":          userIDHex,
		"access_token":     accessToken,
		"expires_at":       accessExp.Unix(),
		"server_pub_key":   hex.EncodeToString(serverKeypair.Ed25519.PublicKey),
		"url_cipher_token": canonical.Base64URLNoPad(urlTokens.CipherToken),
		"url_nonce_token":  canonical.Base64URLNoPad(urlTokens.NonceToken),
		"url_hmac_key":     canonical.Base64URLNoPad(urlTokens.HMACKey),
	}

	if intent.PubKeyX25519 != "" {
		clientX25519Pub, decodeErr := decodeX25519PubKeyHex(intent.PubKeyX25519)
		if decodeErr != nil {
			return nil, decodeErr
		}
		delivered, deliverErr := privkeycontext.DeliverForSession(serverKeypair.X25519.PrivateKey, clientX25519Pub, plaintext)
		if deliverErr != nil {
			return nil, deliverErr
		}
		payload["encrypted_privkey_context"] = canonical.Base64URLNoPad(delivered)
		// The client needs the server's session X25519 public key to run
		// the ECDH partner operation on the ciphertext above.
		payload["server_pub_key_x25519"] = hex.EncodeToString(serverKeypair.X25519.PublicKey[:])
	}

	return &RedeemResult{
		SignedOutput:     SignedOutput{Payload: payload, SigningKey: serverKeypair.Ed25519.PrivateKey},
		ClientPubKeyHex:  intent.PubKey,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (o *Orchestrator) recordSessionPubKeys(ctx context.Context, userID []byte, edPubKeyHex, xPubKeyHex string) error {
	return o.repo.WithTransaction(ctx, repository.AutoCommit, func(tx *repository.Transaction) error {
		hasEd, err := tx.HasUserEd25519Key(userID, edPubKeyHex)
		if err != nil {
			return err
		}
		if !hasEd {
			if err := tx.AddUserEd25519Key(&domain.UserEd25519Key{UserID: userID, PubKey: edPubKeyHex}); err != nil {
				return err
			}
		}
		if xPubKeyHex == "" {
			return nil
		}
		if err := tx.AddUserX25519Key(&domain.UserX25519Key{UserID: userID, PubKey: xPubKeyHex}); err != nil {
			return err
		}
		return nil
	})
}

// ---- Refresh / rotation -----------------------------------------------

// RefreshRequest is the decoded payload of POST /refresh plus the refresh
// cookie value carried alongside it.
type RefreshRequest struct {
	RefreshCookie  string
	NewPubKeyHex   string
	RequestPayload map[string]interface{}
	RequestSigHex  string
}

// RefreshResult is the result of a successful /refresh call.
type RefreshResult struct {
	SignedOutput
	Rotated             bool
	NewRefreshToken     string
	NewRefreshExpiresAt time.Time
}

// Refresh implements the 2/3-window protocol. The decision is a
// pure function of the refresh cookie's exp and the configured refresh
// lifetime, so two parallel refreshes against the same
// cookie always take the same branch.
func (o *Orchestrator) Refresh(ctx context.Context, req RefreshRequest) (*RefreshResult, error) {
	claims, err := o.jwt.VerifyRefreshToken(req.RefreshCookie)
	if err != nil {
		if apperr.Is(err, apperr.KindTokenExpired) {
			return nil, apperr.New(apperr.KindDualExpiry, "authflow: refresh token expired, dual expiry")
		}
		return nil, err
	}

	window := jwtmanager.ClassifyRefreshWindow(claims.ExpiresAt, o.cfg.RefreshTokenDuration)
	if window == jwtmanager.WindowExpired {
		return nil, apperr.New(apperr.KindDualExpiry, "authflow: refresh window expired, dual expiry")
	}

	// Verify the inbound SignedRequest under the *current* key (claims'
	// pub_key_hex): the request is signed with the current private key
	// while announcing the candidate next public key.
	currentPub, err := DecodeEd25519PubKeyHex(claims.PubKeyHex)
	if err != nil {
		return nil, err
	}
	if err := envelope.VerifyQueryParams(currentPub, req.RequestPayload, req.RequestSigHex); err != nil {
		return nil, err
	}

	rotation, err := session.NewRotationState(o.sessionMasterKey(), claims.PubKeyHex, req.NewPubKeyHex)
	if err != nil {
		return nil, err
	}

	if window == jwtmanager.WindowFresh {
		accessToken, accessExp, mintErr := o.jwt.MintAccessToken(claims.UserIDHex, claims.PubKeyHex, o.cfg.AccessTokenDuration)
		if mintErr != nil {
			return nil, mintErr
		}
		payload := map[string]interface{}{
			"user_id":      claims.UserIDHex,
			"access_token": accessToken,
			"expires_at":   accessExp.Unix(),
		}
		return &RefreshResult{
			SignedOutput: SignedOutput{Payload: payload, SigningKey: rotation.CurrentServerKeypair.Ed25519.PrivateKey},
			Rotated:      false,
		}, nil
	}

	// WindowRotate: the server must bind new tokens to the new key only
	// after verifying the old one (reordering would let a stolen refresh
	// cookie pin a rotation to an attacker's own keypair).
	if req.NewPubKeyHex == "" || req.NewPubKeyHex == claims.PubKeyHex {
		return nil, apperr.New(apperr.KindInvalidInput, "authflow: rotation requires a distinct new_pub_key")
	}

	userIDBytes, err := hex.DecodeString(claims.UserIDHex)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTokenInvalid, "authflow: decode user_id claim", err)
	}
	if recordErr := o.recordSessionPubKeys(ctx, userIDBytes, req.NewPubKeyHex, ""); recordErr != nil {
		return nil, recordErr
	}

	accessToken, accessExp, err := o.jwt.MintAccessToken(claims.UserIDHex, req.NewPubKeyHex, o.cfg.AccessTokenDuration)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshExp, err := o.jwt.MintRefreshToken(claims.UserIDHex, req.NewPubKeyHex, o.cfg.RefreshTokenDuration)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"user_id":        claims.UserIDHex,
		"access_token":   accessToken,
		"expires_at":     accessExp.Unix(),
		"server_pub_key": hex.EncodeToString(rotation.NextServerKeypair.Ed25519.PublicKey),
	}

	return &RefreshResult{
		SignedOutput:        SignedOutput{Payload: payload, SigningKey: rotation.CurrentServerKeypair.Ed25519.PrivateKey},
		Rotated:             true,
		NewRefreshToken:     refreshToken,
		NewRefreshExpiresAt: refreshExp,
	}, nil
}

// ---- Logout -------------------------------------------------------------

// Logout builds the signed "cleared" response for DELETE /login. The HTTP
// layer is responsible for actually clearing the refresh cookie; this only
// produces the signed acknowledgement, still bound to the caller's current
// session key so the response can't be forged by an unrelated session.
func (o *Orchestrator) Logout(accessTokenPubKeyHex string) (*SignedOutput, error) {
	serverKeypair, err := session.DeriveServerKeypair(o.sessionMasterKey(), accessTokenPubKeyHex)
	if err != nil {
		return nil, err
	}
	payload := map[string]interface{}{"message": "logged out"}
	return &SignedOutput{Payload: payload, SigningKey: serverKeypair.Ed25519.PrivateKey}, nil
}

// ---- Request validation (middleware helper) -----------------------------

// ValidateAccessToken validates an inbound bearer access token and returns
// its claims "Request validation".
func (o *Orchestrator) ValidateAccessToken(tokenString string) (*jwtmanager.Claims, error) {
	return o.jwt.VerifyAccessToken(tokenString)
}

// URLCryptoTokens derives the three per-session URL-parameter-encryption
// tokens for a session's pub_key, delivered inside the login
// response alongside the other session material.
func (o *Orchestrator) URLCryptoTokens(pubKeyHex string) (urlcrypto.Tokens, error) {
	return urlcrypto.DeriveTokens(o.cfg.ChaChaEncryptionKey[:], pubKeyHex)
}
