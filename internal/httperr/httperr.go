package httperr

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeRateLimit    = "RATE_LIMIT_EXCEEDED"
	CodeInternal     = "INTERNAL_ERROR"
)

type Response struct {
	Status  string            `json:"status"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func respond(c echo.Context, status int, code, msg string, fields map[string]string) error {
	return c.JSON(status, Response{
		Status:  "error",
		Code:    code,
		Message: msg,
		Fields:  fields,
	})
}

func Unauthorized(c echo.Context, msg string) error {
	return respond(c, http.StatusUnauthorized, CodeUnauthorized, msg, nil)
}

func Forbidden(c echo.Context, msg string) error {
	return respond(c, http.StatusForbidden, CodeForbidden, msg, nil)
}

func NotFound(c echo.Context, msg string) error {
	return respond(c, http.StatusNotFound, CodeNotFound, msg, nil)
}

func BadRequest(c echo.Context, msg string) error {
	return respond(c, http.StatusBadRequest, CodeValidation, msg, nil)
}

func Validation(c echo.Context, fields map[string]string) error {
	return respond(c, http.StatusBadRequest, CodeValidation, "validation failed", fields)
}

func RateLimited(c echo.Context, retryAfter string) error {
	c.Response().Header().Set("Retry-After", retryAfter)
	return respond(c, http.StatusTooManyRequests, CodeRateLimit, "rate limit exceeded", nil)
}

func Internal(c echo.Context, err error) error {
	c.Logger().Errorf("internal error: %v", err)
	return respond(c, http.StatusInternalServerError, CodeInternal, "internal server error", nil)
}
