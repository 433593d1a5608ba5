// Copyright (c) 2025 Justin Cranford

package apihandler

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/authflow"
	"github.com/arkaitz-dev/hashrand-sub003/internal/envelope"
	"github.com/arkaitz-dev/hashrand-sub003/internal/jwtmanager"
)

// Locals keys shared between middleware and handlers.
const (
	RequestIDKey = "request_id"
	claimsKey    = "access_claims"
)

// RequestIDHeader is echoed on every response so clients can correlate
// error reports with server logs without the server ever logging the email
// or token.
const RequestIDHeader = "X-Request-Id"

// RequestID assigns a UUIDv7 to each request, stores it in Locals, and
// echoes it in the response header.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		c.Locals(RequestIDKey, id.String())
		c.Set(RequestIDHeader, id.String())
		return c.Next()
	}
}

// RequestLogger logs one line per request with the request id, method,
// path, and status. Never logs bodies, cookies, or query values.
func RequestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		requestID, _ := c.Locals(RequestIDKey).(string)
		logger.Info("request",
			slog.String("request_id", requestID),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
		)
		return err
	}
}

// RequireAuth is the request-validation middleware for authenticated routes:
// extract the bearer access token, verify its JWT signature and expiry,
// read the pub_key_hex claim, then verify the SignedRequest envelope (or,
// for bodyless methods, the `signature` query parameter over the remaining
// query params) under exactly that key. Claims land in Locals for the
// handler.
func (s *Service) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return s.sendError(c, apperr.New(apperr.KindTokenInvalid, "apihandler: missing bearer token"))
		}

		claims, err := s.orch.ValidateAccessToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			return s.sendError(c, err)
		}

		clientPub, err := authflow.DecodeEd25519PubKeyHex(claims.PubKeyHex)
		if err != nil {
			return s.sendError(c, err)
		}

		if len(c.Body()) > 0 {
			var wire envelope.Wire
			if jsonErr := json.Unmarshal(c.Body(), &wire); jsonErr != nil {
				return s.sendError(c, apperr.Wrap(apperr.KindInvalidInput, "apihandler: parse signed request", jsonErr))
			}
			if _, verifyErr := envelope.Verify(clientPub, &wire); verifyErr != nil {
				return s.sendError(c, verifyErr)
			}
		} else {
			params := map[string]interface{}{}
			var sigHex string
			for key, values := range c.Queries() {
				if key == "signature" {
					sigHex = values
					continue
				}
				params[key] = values
			}
			if sigHex == "" {
				return s.sendError(c, apperr.New(apperr.KindSignatureInvalid, "apihandler: signature query parameter missing"))
			}
			if verifyErr := envelope.VerifyQueryParams(clientPub, params, sigHex); verifyErr != nil {
				return s.sendError(c, verifyErr)
			}
		}

		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

func claimsFromLocals(c *fiber.Ctx) (*jwtmanager.Claims, error) {
	claims, ok := c.Locals(claimsKey).(*jwtmanager.Claims)
	if !ok || claims == nil {
		return nil, apperr.New(apperr.KindTokenInvalid, "apihandler: no validated claims on request")
	}
	return claims, nil
}
