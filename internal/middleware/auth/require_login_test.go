package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, mw echo.MiddlewareFunc, cookie *http.Cookie) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))
	return rec, c
}

func TestRequireLoginSetsUserContext(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":  float64(42),
		"role": "user",
		"exp":  time.Now().Add(time.Minute).Unix(),
	})

	rec, c := doRequest(t, RequireLogin(testSecret), &http.Cookie{Name: "accessToken", Value: token})
	require.Equal(t, http.StatusOK, rec.Code)

	userID, err := UserID(c)
	require.NoError(t, err)
	require.Equal(t, uint(42), userID)
	require.Equal(t, "user", Role(c))
}

func TestRequireLoginMissingCookie(t *testing.T) {
	rec, _ := doRequest(t, RequireLogin(testSecret), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireLoginRejectsBadSignature(t *testing.T) {
	token := signToken(t, []byte("other-secret"), jwt.MapClaims{
		"sub": float64(42),
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	rec, _ := doRequest(t, RequireLogin(testSecret), &http.Cookie{Name: "accessToken", Value: token})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireLoginRejectsExpired(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": float64(42),
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	rec, _ := doRequest(t, RequireLogin(testSecret), &http.Cookie{Name: "accessToken", Value: token})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("role", "user")

	handler := RequireAdmin(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))
	require.Equal(t, http.StatusForbidden, rec.Code)
}
