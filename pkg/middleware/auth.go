package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"fleetdispatch/pkg/apperr"
	"fleetdispatch/pkg/config"
	"fleetdispatch/pkg/models"
)

const identityKey = "identity"

// AdminKeyUser is the user id recorded for requests authorized by X-Admin-Key.
const AdminKeyUser = "admin-key"

// Claims are issued by the external account service.
type Claims struct {
	Role      models.Role `json:"role"`
	CompanyID string      `json:"company_id,omitempty"`
	SiteID    string      `json:"site_id,omitempty"`
	jwt.RegisteredClaims
}

type Auth struct {
	secret       []byte
	adminKeyHash []byte
}

func NewAuth(cfg config.AuthConfig) *Auth {
	return &Auth{secret: []byte(cfg.JWTSecret), adminKeyHash: []byte(cfg.AdminKeyBcrypt)}
}

// Parse verifies an HS256 bearer token and returns the caller's identity.
func (a *Auth) Parse(tokenStr string) (models.Identity, error) {
	if tokenStr == "" {
		return models.Identity{}, &apperr.AuthenticationError{Reason: "missing token"}
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		reason := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			reason = "token expired"
		}
		return models.Identity{}, &apperr.AuthenticationError{Reason: reason}
	}
	if claims.Subject == "" {
		return models.Identity{}, &apperr.AuthenticationError{Reason: "token has no subject"}
	}

	switch claims.Role {
	case models.RoleAdmin, models.RoleOperator, models.RoleDriver, models.RoleGuardian, models.RoleRider:
	default:
		return models.Identity{}, &apperr.AuthenticationError{Reason: "unknown role"}
	}

	return models.Identity{
		UserID:    claims.Subject,
		Role:      claims.Role,
		CompanyID: claims.CompanyID,
		SiteID:    claims.SiteID,
	}, nil
}

func bearer(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// Require rejects requests without a valid bearer token.
func (a *Auth) Require(c *fiber.Ctx) error {
	id, err := a.Parse(bearer(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	c.Locals(identityKey, id)
	return c.Next()
}

// RequireRole must run after Require.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := IdentityFrom(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
		}
		if !id.Is(roles...) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden: role " + string(id.Role) + " not allowed"})
		}
		return c.Next()
	}
}

// AdminKeyOrRole accepts either an X-Admin-Key matching the configured
// bcrypt hash or a bearer token with one of roles.
func (a *Auth) AdminKeyOrRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key := c.Get("X-Admin-Key"); key != "" {
			if len(a.adminKeyHash) == 0 || bcrypt.CompareHashAndPassword(a.adminKeyHash, []byte(key)) != nil {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid admin key"})
			}
			c.Locals(identityKey, models.Identity{UserID: AdminKeyUser, Role: models.RoleAdmin})
			return c.Next()
		}

		id, err := a.Parse(bearer(c))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}
		if !id.Is(roles...) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden: role " + string(id.Role) + " not allowed"})
		}
		c.Locals(identityKey, id)
		return c.Next()
	}
}

// WebSocket authenticates the handshake before upgrade. The token comes from
// ?token= or the Authorization header.
func (a *Auth) WebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr = bearer(c)
	}
	id, err := a.Parse(tokenStr)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	c.Locals(identityKey, id)
	return c.Next()
}

// IdentityFrom reads the identity stored by Require, AdminKeyOrRole or
// WebSocket.
func IdentityFrom(c *fiber.Ctx) (models.Identity, bool) {
	id, ok := c.Locals(identityKey).(models.Identity)
	return id, ok && id.UserID != ""
}

// ConnIdentity is IdentityFrom for an upgraded connection.
func ConnIdentity(conn *websocket.Conn) (models.Identity, bool) {
	id, ok := conn.Locals(identityKey).(models.Identity)
	return id, ok && id.UserID != ""
}
