package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/opendatarepo/odr-backend/internal/http/response"
	"github.com/opendatarepo/odr-backend/internal/platform/apierr"
)

const headerAPIKey = "X-Api-Key"

// RequireWorkerKey guards the internal stage endpoints with the worker shared
// secret. Stage payloads carry the same key and are re-checked by each
// pipeline, so a request passing this gate with a forged body still fails.
func RequireWorkerKey(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := strings.TrimSpace(c.GetHeader(headerAPIKey))
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			response.RespondError(c, http.StatusUnauthorized, apierr.CodeUnauthorized,
				fmt.Errorf("missing or invalid %s header", headerAPIKey))
			c.Abort()
			return
		}
		c.Next()
	}
}
