package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const userIDContextKey = "userID"

// AuthRequired validates the identity provider's bearer token and stashes the
// stable user id from its subject claim. The whole data path is inert without
// a user id, so requests lacking one stop here.
func (handler *Handler) AuthRequired(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(header, "Bearer ") {
		return unauthorized(c)
	}
	rawToken := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(rawToken, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return handler.secretKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return unauthorized(c)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return unauthorized(c)
	}

	c.Locals(userIDContextKey, subject)
	return c.Next()
}

func currentUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(userIDContextKey).(string)
	return userID
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
}
