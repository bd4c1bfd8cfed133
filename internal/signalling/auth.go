package signalling

import (
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/golang-jwt/jwt/v5"
)

const adminUser = "admin"

// Claims are the expected bearer token claims; the subject names the caller.
type Claims struct {
	jwt.RegisteredClaims
}

func (s *Server) isAdminIP(c *fiber.Ctx) bool {
	ip, ok := netip.AddrFromSlice(c.Context().RemoteIP())
	if !ok {
		slog.Error("failed to parse IP address", "addr", c.IP())
		return false
	}
	ip = ip.Unmap()

	for _, n := range s.opts.Security().AdminsRawNetworks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// adminOnly restricts a route to admin networks and, when an admin credential
// is configured, to basic auth as "admin".
func (s *Server) adminOnly() []fiber.Handler {
	checkNetwork := func(c *fiber.Ctx) error {
		if !s.isAdminIP(c) {
			slog.Warn("blocking admin api access", "addr", c.IP(), "path", c.Path())
			return c.Status(fiber.StatusForbidden).SendString("Forbidden. IP address black listed")
		}
		return c.Next()
	}

	checkCredential := basicauth.New(basicauth.Config{
		Realm: "Forbidden",
		Next: func(c *fiber.Ctx) bool {
			return s.opts.Security().AdminCredential == nil
		},
		Authorizer: func(user, pass string) bool {
			credential := s.opts.Security().AdminCredential
			return credential == nil || user == adminUser && pass == *credential
		},
	})

	return []fiber.Handler{checkNetwork, checkCredential}
}

// requireToken validates an HS256 bearer token when a jwt secret is configured.
// Websocket clients may pass the token as ?token= instead.
func (s *Server) requireToken(c *fiber.Ctx) error {
	secret := s.opts.Security().JWTSecret
	if secret == nil || *secret == "" {
		return c.Next()
	}

	tokenString := c.Query("token")
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid authorization header format"})
		}
		tokenString = parts[1]
	}
	if tokenString == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authorization header required"})
	}

	claims, err := parseToken(tokenString, *secret)
	if err != nil {
		slog.Debug("rejected token", "addr", c.IP(), "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	c.Locals("subject", claims.Subject)
	return c.Next()
}

func parseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
