package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var ErrNoUser = errors.New("no authenticated user in context")

func setUserContext(c echo.Context, userID uint, claims jwt.MapClaims) {
	c.Set("userID", userID)
	if role, ok := claims["role"].(string); ok {
		c.Set("role", role)
	}
}

func UserID(c echo.Context) (uint, error) {
	if v, ok := c.Get("userID").(uint); ok {
		return v, nil
	}
	return 0, ErrNoUser
}

func Role(c echo.Context) string {
	if v, ok := c.Get("role").(string); ok {
		return v
	}
	return ""
}
