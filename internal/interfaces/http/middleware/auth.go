package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/faktura/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// SyncTokenHeader carries the shared token of the reservation system.
const SyncTokenHeader = "X-Sync-Token"

// Auth checks the static API token on the regular routes. With an
// empty token configured (development) every request passes.
func Auth(apiToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiToken == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(apiToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse(dto.ErrCodeUnauthorized, "Invalid or missing API token"))
			return
		}

		c.Next()
	}
}

// SyncToken guards the reservation integration routes with the shared
// token from config. Unlike Auth an empty configured token locks the
// routes down entirely.
func SyncToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden,
				dto.NewErrorResponse(dto.ErrCodeForbidden, "Reservation sync is not configured"))
			return
		}

		provided := c.GetHeader(SyncTokenHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse(dto.ErrCodeUnauthorized, "Invalid sync token"))
			return
		}

		c.Next()
	}
}
