package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/svwenlabs/svwen-ledger/internal/ledger"
)

// statusFor maps taxonomy codes to HTTP statuses.
func statusFor(code ledger.Code) int {
	switch code {
	case ledger.CodeInvalidInput:
		return http.StatusBadRequest
	case ledger.CodeUnauthorized:
		return http.StatusUnauthorized
	case ledger.CodeForbidden:
		return http.StatusForbidden
	case ledger.CodeNotFound:
		return http.StatusNotFound
	case ledger.CodeConflict, ledger.CodeInsufficientBalance:
		return http.StatusConflict
	case ledger.CodeIntegrityCompromised:
		return http.StatusServiceUnavailable
	case ledger.CodeExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope. Non-taxonomy errors surface as
// INTERNAL without leaking their message.
func respondError(c *gin.Context, err error) {
	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		lerr = &ledger.Error{Code: ledger.CodeInternal, Message: "internal error"}
	}
	c.JSON(statusFor(lerr.Code), gin.H{
		"error": gin.H{
			"code":    string(lerr.Code),
			"message": lerr.Message,
		},
	})
}

// bearerToken extracts the token from the Authorization header. An empty
// string is returned when the header is missing or not a Bearer scheme;
// the service rejects empty tokens as unauthorized.
func bearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	h := c.GetHeader("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
