package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opendatarepo/odr-backend/internal/http/response"
	"github.com/opendatarepo/odr-backend/internal/platform/apierr"
	"github.com/opendatarepo/odr-backend/internal/platform/ctxutil"
)

const headerUserID = "X-User-Id"

// AttachRequestData resolves the caller identity the gateway forwards in
// X-User-Id. Authentication happens upstream; a request without a valid user
// id never reaches the export surface.
func AttachRequestData() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(headerUserID))
		userID, err := uuid.Parse(raw)
		if err != nil || userID == uuid.Nil {
			response.RespondError(c, http.StatusUnauthorized, apierr.CodeUnauthorized,
				fmt.Errorf("missing or malformed %s header", headerUserID))
			c.Abort()
			return
		}
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{
			UserID: userID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set("user_id", userID.String())
		c.Next()
	}
}
