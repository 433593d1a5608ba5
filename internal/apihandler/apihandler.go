// Copyright (c) 2025 Justin Cranford

// Package apihandler implements the Fiber handlers for the core HTTP
// surface: POST /login/, POST /login/magiclink/, POST /refresh,
// DELETE /login, GET /version, and GET /healthz. Handlers parse and verify
// SignedRequest envelopes, delegate to the authflow orchestrator, and sign
// outbound payloads; all cookie handling lives here, never in authflow.
package apihandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/authflow"
	"github.com/arkaitz-dev/hashrand-sub003/internal/canonical"
	"github.com/arkaitz-dev/hashrand-sub003/internal/config"
	"github.com/arkaitz-dev/hashrand-sub003/internal/envelope"
	"github.com/arkaitz-dev/hashrand-sub003/internal/repository"
)

// RefreshCookieName is the cookie that carries the refresh JWT
// (HttpOnly, Secure, SameSite=Strict).
const RefreshCookieName = "refresh_token"

// Service holds the constructor-injected dependencies every handler needs.
type Service struct {
	cfg       *config.Config
	orch      *authflow.Orchestrator
	repo      *repository.Provider
	logger    *slog.Logger
	version   string
	gitCommit string
}

// NewService validates its dependencies and builds the handler service.
func NewService(cfg *config.Config, orch *authflow.Orchestrator, repo *repository.Provider, logger *slog.Logger, version, gitCommit string) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config must be non-nil")
	}
	if orch == nil {
		return nil, errors.New("orchestrator must be non-nil")
	}
	if repo == nil {
		return nil, errors.New("repository provider must be non-nil")
	}
	if logger == nil {
		return nil, errors.New("logger must be non-nil")
	}
	return &Service{cfg: cfg, orch: orch, repo: repo, logger: logger, version: version, gitCommit: gitCommit}, nil
}

// httpStatus maps an apperr.Kind to its HTTP status.
func httpStatus(err error) int {
	switch {
	case apperr.Is(err, apperr.KindInvalidInput):
		return http.StatusBadRequest
	case apperr.Is(err, apperr.KindMagicLinkInvalidOrExpired):
		return http.StatusBadRequest
	case apperr.Is(err, apperr.KindSignatureInvalid),
		apperr.Is(err, apperr.KindTokenInvalid),
		apperr.Is(err, apperr.KindTokenExpired),
		apperr.Is(err, apperr.KindDualExpiry):
		return http.StatusUnauthorized
	case apperr.Is(err, apperr.KindStorageError):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// safeMessage is what the client sees for err: the error kind only, never
// the internal message chain.
func safeMessage(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return string(appErr.Kind)
	}
	return "internal_error"
}

// sendError logs err with the request id and writes the error wire shape. The
// dual-expiry body is distinguishable by its error field so the client can
// purge session state instead of retrying.
func (s *Service) sendError(c *fiber.Ctx, err error) error {
	requestID, _ := c.Locals(RequestIDKey).(string)
	s.logger.Warn("request failed",
		slog.String("request_id", requestID),
		slog.String("path", c.Path()),
		slog.String("error_kind", safeMessage(err)),
		slog.String("error", err.Error()),
	)
	return c.Status(httpStatus(err)).JSON(fiber.Map{
		"error":      safeMessage(err),
		"request_id": requestID,
	})
}

// sendSigned signs out.Payload with out.SigningKey and writes the
// SignedResponse wire shape.
func (s *Service) sendSigned(c *fiber.Ctx, status int, out *authflow.SignedOutput) error {
	wire, err := envelope.Sign(out.SigningKey, out.Payload)
	if err != nil {
		return s.sendError(c, err)
	}
	return c.Status(status).JSON(wire)
}

// parseWire decodes the request body as a SignedRequest envelope without
// verifying it (the verification key differs per endpoint).
func parseWire(c *fiber.Ctx) (*envelope.Wire, []byte, error) {
	var wire envelope.Wire
	if err := json.Unmarshal(c.Body(), &wire); err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInvalidInput, "apihandler: parse signed request", err)
	}
	payloadJSON, err := canonical.DecodeBase64URLNoPad(wire.Payload)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInvalidInput, "apihandler: decode payload base64", err)
	}
	return &wire, payloadJSON, nil
}

// loginPayload is the decoded payload of POST /login/.
type loginPayload struct {
	Email        string `json:"email"`
	UIHost       string `json:"ui_host"`
	Next         string `json:"next"`
	EmailLang    string `json:"email_lang"`
	PubKey       string `json:"pub_key"`
	PubKeyX25519 string `json:"pub_key_x25519,omitempty"`
}

// PostLogin issues a magic link. The inbound envelope is verified against
// the pub_key announced inside the payload itself: a trust-on-first-use
// bootstrap, since no session exists yet. The
// response is always 200 on well-formed input, even for unknown emails.
func (s *Service) PostLogin(c *fiber.Ctx) error {
	wire, payloadJSON, err := parseWire(c)
	if err != nil {
		return s.sendError(c, err)
	}

	var payload loginPayload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return s.sendError(c, apperr.Wrap(apperr.KindInvalidInput, "apihandler: decode login payload", err))
	}

	clientPub, err := authflow.DecodeEd25519PubKeyHex(payload.PubKey)
	if err != nil {
		return s.sendError(c, err)
	}
	if _, err := envelope.Verify(clientPub, wire); err != nil {
		return s.sendError(c, err)
	}

	out, err := s.orch.Login(c.UserContext(), authflow.LoginRequest{
		Email:            payload.Email,
		UIHost:           payload.UIHost,
		Next:             payload.Next,
		EmailLang:        payload.EmailLang,
		PubKeyEd25519Hex: payload.PubKey,
		PubKeyX25519Hex:  payload.PubKeyX25519,
	})
	if err != nil {
		return s.sendError(c, err)
	}
	return s.sendSigned(c, http.StatusOK, out)
}

// magicLinkPayload is the decoded payload of POST /login/magiclink/.
type magicLinkPayload struct {
	MagicLink string `json:"magiclink"`
}

// PostLoginMagicLink redeems a magic link and mints the session's first
// access+refresh token pair. Possession of the raw token authorizes the
// redemption; the envelope signature is additionally checked against the
// pub_key sealed inside the link at issuance, and the exchange fails closed
// (link already consumed, no tokens returned) on a mismatch.
func (s *Service) PostLoginMagicLink(c *fiber.Ctx) error {
	wire, payloadJSON, err := parseWire(c)
	if err != nil {
		return s.sendError(c, err)
	}

	var payload magicLinkPayload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return s.sendError(c, apperr.Wrap(apperr.KindInvalidInput, "apihandler: decode magiclink payload", err))
	}
	if payload.MagicLink == "" {
		return s.sendError(c, apperr.New(apperr.KindInvalidInput, "apihandler: magiclink is required"))
	}

	result, err := s.orch.RedeemMagicLink(c.UserContext(), payload.MagicLink)
	if err != nil {
		return s.sendError(c, err)
	}

	clientPub, err := authflow.DecodeEd25519PubKeyHex(result.ClientPubKeyHex)
	if err != nil {
		return s.sendError(c, err)
	}
	if _, err := envelope.Verify(clientPub, wire); err != nil {
		return s.sendError(c, err)
	}

	s.setRefreshCookie(c, result.RefreshToken, result.RefreshExpiresAt)
	return s.sendSigned(c, http.StatusOK, &result.SignedOutput)
}

// refreshPayload is the decoded payload of POST /refresh.
type refreshPayload struct {
	NewPubKey string `json:"new_pub_key"`
}

// PostRefresh drives the 2/3-window protocol. The envelope
// signature is verified inside authflow under the *current* pub_key taken
// from the refresh cookie's claims, never under the announced new_pub_key.
func (s *Service) PostRefresh(c *fiber.Ctx) error {
	wire, payloadJSON, err := parseWire(c)
	if err != nil {
		return s.sendError(c, err)
	}

	var payload refreshPayload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return s.sendError(c, apperr.Wrap(apperr.KindInvalidInput, "apihandler: decode refresh payload", err))
	}

	cookie := c.Cookies(RefreshCookieName)
	if cookie == "" {
		return s.sendError(c, apperr.New(apperr.KindDualExpiry, "apihandler: refresh cookie missing"))
	}

	var payloadMap map[string]interface{}
	if err := json.Unmarshal(payloadJSON, &payloadMap); err != nil {
		return s.sendError(c, apperr.Wrap(apperr.KindInvalidInput, "apihandler: decode refresh payload map", err))
	}

	result, err := s.orch.Refresh(c.UserContext(), authflow.RefreshRequest{
		RefreshCookie:  cookie,
		NewPubKeyHex:   payload.NewPubKey,
		RequestPayload: payloadMap,
		RequestSigHex:  wire.Signature,
	})
	if err != nil {
		return s.sendError(c, err)
	}

	if result.Rotated {
		s.setRefreshCookie(c, result.NewRefreshToken, result.NewRefreshExpiresAt)
	}
	return s.sendSigned(c, http.StatusOK, &result.SignedOutput)
}

// DeleteLogin logs the session out: clears the refresh cookie and returns a
// signed acknowledgement. Requires RequireAuth to have run.
func (s *Service) DeleteLogin(c *fiber.Ctx) error {
	claims, err := claimsFromLocals(c)
	if err != nil {
		return s.sendError(c, err)
	}

	out, err := s.orch.Logout(claims.PubKeyHex)
	if err != nil {
		return s.sendError(c, err)
	}

	s.clearRefreshCookie(c)
	return s.sendSigned(c, http.StatusOK, out)
}

// GetVersion is the unsigned public version endpoint.
func (s *Service) GetVersion(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"version":     s.version,
		"git_commit":  s.gitCommit,
		"environment": string(s.cfg.Environment),
	})
}

// GetHealthz reports process liveness plus database connectivity. It
// exercises no key material, so its timing leaks nothing about key
// validity.
func (s *Service) GetHealthz(c *fiber.Ctx) error {
	err := s.repo.WithTransaction(c.UserContext(), repository.AutoCommit, func(tx *repository.Transaction) error {
		return tx.Ping()
	})
	if err != nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy"})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
}

func (s *Service) setRefreshCookie(c *fiber.Ctx, token string, expiresAt time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   s.cfg.IsProduction(),
		SameSite: fiber.CookieSameSiteStrictMode,
		Path:     "/",
	})
}

func (s *Service) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   s.cfg.IsProduction(),
		SameSite: fiber.CookieSameSiteStrictMode,
		Path:     "/",
	})
}
