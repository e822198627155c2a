package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/antigravity-proxy/gatewaycore/internal/api/handlers"
	"github.com/antigravity-proxy/gatewaycore/internal/api/middleware"
	"github.com/antigravity-proxy/gatewaycore/internal/logging"
)

// NewRouter builds the gin engine: recovery, request-id logging, response
// compression, the doubled-prefix rewrite, boundary auth, and route
// registration for every external surface in section 6.1.
func NewRouter(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(logging.GinRecovery())
	r.Use(logging.GinLogger())
	r.Use(rewriteDoubledGeminiPrefix())
	r.Use(middleware.CompressResponse())

	h := handlers.New(s.Config, s.Dispatcher, s.Upstream, s.UsageSink)

	authed := r.Group("/")
	authed.Use(middleware.APIKeyAuth(s.Config))

	authed.POST("/v1/chat/completions", h.ChatCompletions)

	authed.POST("/v1/messages", h.Messages)
	authed.POST("/v1/messages/count_tokens", h.CountTokens)

	authed.POST("/v1beta/models/:model", h.GeminiGenerate)

	authed.POST("/v1/images/generations", h.ImagesGenerate)

	authed.GET("/v1/models", h.ListModelsOpenAI)
	authed.GET("/v1beta/models", h.ListModelsGemini)

	return r
}

// rewriteDoubledGeminiPrefix rewrites a malformed client-constructed
// "/v1beta/v1beta/..." path to "/v1beta/..." before routing, per section
// 6.4, so a caller that double-joins its base URL with the SDK's default
// path prefix still reaches the native Gemini handler.
func rewriteDoubledGeminiPrefix() gin.HandlerFunc {
	const doubled = "/v1beta/v1beta/"
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, doubled) {
			c.Request.URL.Path = "/v1beta/" + strings.TrimPrefix(c.Request.URL.Path, doubled)
		}
		c.Next()
	}
}
