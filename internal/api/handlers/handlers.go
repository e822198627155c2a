// Package handlers implements the per-protocol HTTP handlers: each parses
// its wire request, resolves the target model, runs the request through the
// RetryDispatcher (acquiring an identity, translating to the upstream shape,
// issuing the call, translating the response back), and writes the usage
// record. Grounded on the teacher's sdk/api/handlers package layout (one
// file per protocol, a shared error-response builder), collapsed to this
// gateway's three protocol surfaces plus images and model listing.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/antigravity-proxy/gatewaycore/internal/config"
	"github.com/antigravity-proxy/gatewaycore/internal/dispatch"
	"github.com/antigravity-proxy/gatewaycore/internal/identity"
	"github.com/antigravity-proxy/gatewaycore/internal/tokencount"
	"github.com/antigravity-proxy/gatewaycore/internal/tokenpool"
	"github.com/antigravity-proxy/gatewaycore/internal/upstream"
)

// Handlers bundles the dependencies every protocol handler needs.
type Handlers struct {
	Config     *config.Config
	Dispatcher *dispatch.Dispatcher
	Upstream   *upstream.Client
	UsageSink  identity.UsageSink
}

// New builds a Handlers.
func New(cfg *config.Config, dispatcher *dispatch.Dispatcher, upstreamClient *upstream.Client, usageSink identity.UsageSink) *Handlers {
	return &Handlers{Config: cfg, Dispatcher: dispatcher, Upstream: upstreamClient, UsageSink: usageSink}
}

// errorResponse is the OpenAI-compatible error body; writeAnthropicError
// and writeGeminiError reshape the same status/message pair into their own
// wire formats.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// statusAndMessage extracts the HTTP status and a client-safe message from
// a dispatcher error.
func statusAndMessage(err error) (int, string) {
	var proxyErr *dispatch.Error
	if e, ok := err.(*dispatch.Error); ok {
		proxyErr = e
	}
	if proxyErr != nil {
		return proxyErr.StatusCode(), proxyErr.Error()
	}
	var httpErr *upstream.HTTPError
	if e, ok := err.(*upstream.HTTPError); ok {
		httpErr = e
	}
	if httpErr != nil {
		return httpErr.Status, httpErr.Body
	}
	return http.StatusInternalServerError, err.Error()
}

func errTypeForStatus(status int) (errType, code string) {
	switch status {
	case http.StatusUnauthorized:
		return "authentication_error", "invalid_api_key"
	case http.StatusForbidden:
		return "permission_error", "insufficient_quota"
	case http.StatusTooManyRequests:
		return "rate_limit_error", "rate_limit_exceeded"
	case http.StatusBadRequest:
		return "invalid_request_error", ""
	case http.StatusNotFound:
		return "invalid_request_error", "model_not_found"
	default:
		if status >= http.StatusInternalServerError {
			return "server_error", "internal_server_error"
		}
		return "invalid_request_error", ""
	}
}

// writeOpenAIError writes the OpenAI-compatible error shape.
func writeOpenAIError(c *gin.Context, err error) {
	status, msg := statusAndMessage(err)
	errType, code := errTypeForStatus(status)
	c.JSON(status, errorResponse{Error: errorDetail{Message: msg, Type: errType, Code: code}})
}

// writeAnthropicError writes the Anthropic Messages error shape.
func writeAnthropicError(c *gin.Context, err error) {
	status, msg := statusAndMessage(err)
	errType, _ := errTypeForStatus(status)
	c.JSON(status, gin.H{"type": "error", "error": gin.H{"type": errType, "message": msg}})
}

// writeGeminiError writes the Google API error shape.
func writeGeminiError(c *gin.Context, err error) {
	status, msg := statusAndMessage(err)
	c.JSON(status, gin.H{"error": gin.H{"code": status, "message": msg, "status": http.StatusText(status)}})
}

// quotaGroupFor picks the pool's quota tier for a resolved upstream model
// name: Claude-family models draw from the Claude-sharing group, everything
// else draws from the default Gemini group.
func quotaGroupFor(upstreamModel string) tokenpool.QuotaGroup {
	if strings.HasPrefix(upstreamModel, "claude-") {
		return tokenpool.QuotaClaude
	}
	return tokenpool.QuotaGemini
}

func readBody(c *gin.Context) ([]byte, error) {
	return c.GetRawData()
}

func recordUsage(h *Handlers, protocol, model, email string, success bool, status int, elapsed time.Duration, errCategory string) {
	identity.LogAndSwallow(context.Background(), h.UsageSink, identity.UsageRecord{
		Timestamp:     time.Now(),
		Protocol:      protocol,
		Model:         model,
		IdentityEmail: email,
		Success:       success,
		UpstreamCode:  status,
		ElapsedMs:     elapsed.Milliseconds(),
		ErrorCategory: errCategory,
	})
}

func lastEmail(tried []string) string {
	if len(tried) == 0 {
		return ""
	}
	return tried[len(tried)-1]
}

// withFallbackUsage fills in a tiktoken-estimated usage block when the
// upstream response carried none at all (some streaming error paths omit
// usageMetadata entirely), so OpenAI-shaped clients that assume usage is
// always present don't see an absent field.
func withFallbackUsage(requestedModel string, originalRawJSON, respBody []byte) []byte {
	if gjson.GetBytes(respBody, "usage").Exists() {
		return respBody
	}
	count, err := tokencount.EstimateChatTokens(requestedModel, originalRawJSON)
	if err != nil {
		return respBody
	}
	out, err := sjson.SetRawBytes(respBody, "usage", []byte(fmt.Sprintf(
		`{"prompt_tokens":%d,"completion_tokens":0,"total_tokens":%d}`, count, count)))
	if err != nil {
		return respBody
	}
	return out
}

func errorCategory(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(*dispatch.Error); ok {
		return string(e.Kind)
	}
	return fmt.Sprintf("%T", err)
}
