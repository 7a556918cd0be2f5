package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/restitch/marketplace/internal/httperr"
)

// RequireLogin validates the access token cookie and stores the caller's
// identity in the echo context for downstream handlers.
func RequireLogin(jwtSecret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie("accessToken")
			if err != nil || cookie.Value == "" {
				return httperr.Unauthorized(c, "missing auth cookie")
			}

			token, err := jwt.Parse(cookie.Value, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return jwtSecret, nil
			})
			if err != nil || !token.Valid {
				return httperr.Unauthorized(c, "invalid token")
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return httperr.Unauthorized(c, "invalid token claims")
			}
			subRaw, ok := claims["sub"].(float64)
			if !ok {
				return httperr.Unauthorized(c, "invalid subject claim")
			}

			setUserContext(c, uint(subRaw), claims)
			return next(c)
		}
	}
}

// RequireAdmin gates admin-only routes; it must run after RequireLogin.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if Role(c) != "admin" {
			return httperr.Forbidden(c, "admin only")
		}
		return next(c)
	}
}
