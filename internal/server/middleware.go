package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/memberbill/internal/audit/domain"
	"github.com/smallbiznis/memberbill/internal/clientcontext"
	obscontext "github.com/smallbiznis/memberbill/internal/observability/context"
)

const HeaderClient = "X-Client-ID"

// ClientContext resolves the tenant from the X-Client-ID header and scopes
// the request context to it. Unknown clients are rejected before any handler runs.
func (s *Server) ClientContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderClient))
		if raw == "" {
			AbortWithError(c, newValidationError("client_id", "invalid_client", "X-Client-ID header is required"))
			return
		}
		clientID, err := snowflake.ParseString(raw)
		if err != nil || clientID == 0 {
			AbortWithError(c, newValidationError("client_id", "invalid_client", "invalid X-Client-ID header"))
			return
		}

		if _, err := s.clientSvc.GetByID(c.Request.Context(), clientID.String()); err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := clientcontext.WithClientID(c.Request.Context(), clientID)
		ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeClient), clientID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
