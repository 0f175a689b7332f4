package middleware

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"minisocial/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// TokenOptions describe which bearer tokens are accepted. Issuer and
// Audience are enforced only when non-empty.
type TokenOptions struct {
	Secret   string
	Issuer   string
	Audience string
}

var (
	errMissingToken  = errors.New("authorization required")
	errInvalidToken  = errors.New("invalid or expired token")
	errInvalidClaims = errors.New("invalid token claims")
)

// ParseIdentity validates an HS256 token and returns the caller it names.
// The user id comes from "sub"; the display name from "username", falling back to "name".
func ParseIdentity(tokenString string, opts TokenOptions) (models.Identity, error) {
	if tokenString == "" {
		return models.Identity{}, errMissingToken
	}

	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(opts.Secret), nil
	}, parserOpts...)
	if err != nil || !token.Valid {
		return models.Identity{}, errInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return models.Identity{}, errInvalidClaims
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || userID == 0 {
		return models.Identity{}, errInvalidClaims
	}

	username, _ := claims["username"].(string)
	if username == "" {
		username, _ = claims["name"].(string)
	}

	return models.Identity{UserID: uint(userID), Username: username}, nil
}

// bearerToken pulls the token from "Authorization: Bearer" or, failing that, ?token=.
func bearerToken(c *fiber.Ctx) string {
	if parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return c.Query("token")
}

func setIdentity(c *fiber.Ctx, id models.Identity) {
	c.Locals("userID", id.UserID)
	c.Locals("username", id.Username)
	ctx := context.WithValue(c.UserContext(), UserIDKey, id.UserID)
	c.SetUserContext(ctx)
}

// AuthRequired rejects requests without a valid bearer token with 401.
func AuthRequired(opts TokenOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := ParseIdentity(bearerToken(c), opts)
		if err != nil {
			msg := "Invalid or expired token"
			if errors.Is(err, errMissingToken) {
				msg = "Authorization required"
			}
			return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(msg))
		}
		setIdentity(c, id)
		return c.Next()
	}
}

// OptionalAuth attaches the identity when a valid token is present and
// lets anonymous requests through untouched.
func OptionalAuth(opts TokenOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, err := ParseIdentity(bearerToken(c), opts); err == nil {
			setIdentity(c, id)
		}
		return c.Next()
	}
}

// IdentityFrom returns the identity attached by AuthRequired or OptionalAuth.
func IdentityFrom(c *fiber.Ctx) (models.Identity, bool) {
	uid, ok := c.Locals("userID").(uint)
	if !ok || uid == 0 {
		return models.Identity{}, false
	}
	name, _ := c.Locals("username").(string)
	return models.Identity{UserID: uid, Username: name}, true
}
