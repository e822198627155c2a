// Package middleware holds the gin middleware chain for the boundary
// authentication described in section 6.4: an incoming request is accepted
// if any one of several client-supplied credential slots matches a
// configured API key. Grounded on the teacher's
// internal/access/config_access.provider, reduced from a pluggable
// access-provider registry to a single direct check (this gateway has
// exactly one credential source — the YAML config's api-keys list — so the
// teacher's provider-registration indirection has nothing else to
// register; see DESIGN.md).
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/antigravity-proxy/gatewaycore/internal/config"
)

// APIKeyAuth checks the Authorization bearer token, the x-api-key and
// x-goog-api-key headers, and the key/auth_token query parameters, in that
// order, against cfg's configured API keys.
func APIKeyAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		candidates := []string{
			extractBearerToken(c.GetHeader("Authorization")),
			c.GetHeader("x-api-key"),
			c.GetHeader("x-goog-api-key"),
			c.Query("key"),
			c.Query("auth_token"),
		}

		anySupplied := false
		for _, candidate := range candidates {
			if candidate == "" {
				continue
			}
			anySupplied = true
			if cfg.IsValidAPIKey(candidate) {
				c.Next()
				return
			}
		}

		if !anySupplied {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "missing API credentials", "type": "authentication_error"}})
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "invalid API key", "type": "authentication_error"}})
	}
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return header
	}
	if !strings.EqualFold(parts[0], "bearer") {
		return header
	}
	return strings.TrimSpace(parts[1])
}
