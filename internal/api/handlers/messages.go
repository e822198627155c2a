package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/antigravity-proxy/gatewaycore/internal/dispatch"
	"github.com/antigravity-proxy/gatewaycore/internal/translator/claude"
	"github.com/antigravity-proxy/gatewaycore/internal/upstream"
)

// Messages serves POST /v1/messages.
func (h *Handlers) Messages(c *gin.Context) {
	rawJSON, err := readBody(c)
	if err != nil {
		writeAnthropicError(c, dispatch.NewBadRequest("reading request body: %v", err))
		return
	}

	requestedModel := gjson.GetBytes(rawJSON, "model").String()
	upstreamModel := h.Config.ResolveModel(requestedModel)
	streaming := gjson.GetBytes(rawJSON, "stream").Bool()

	upstreamReq, err := claude.ToUpstream(rawJSON)
	if err != nil {
		writeAnthropicError(c, dispatch.NewBadRequest("translating request: %v", err))
		return
	}

	start := time.Now()
	if streaming {
		h.messagesStreaming(c, requestedModel, upstreamModel, upstreamReq, start)
		return
	}
	h.messagesNonStreaming(c, requestedModel, upstreamModel, upstreamReq, start)
}

func (h *Handlers) messagesNonStreaming(c *gin.Context, requestedModel, upstreamModel string, upstreamReq []byte, start time.Time) {
	var respBody []byte
	tried, err := h.Dispatcher.Do(c.Request.Context(), quotaGroupFor(upstreamModel), func(ctx context.Context, accessToken, projectID, email string) error {
		body := upstream.WrapperBody(projectID, upstreamModel, upstreamReq, upstream.ProtocolClaude, upstream.RequestTypeGenerateContent)
		raw, err := h.Upstream.Unary(ctx, accessToken, body)
		if err != nil {
			return err
		}
		respBody = claude.FromUpstream(requestedModel, raw)
		return nil
	})

	status := http.StatusOK
	if err != nil {
		status, _ = statusAndMessage(err)
	}
	recordUsage(h, "claude", requestedModel, lastEmail(tried), err == nil, status, time.Since(start), errorCategory(err))
	if err != nil {
		writeAnthropicError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", respBody)
}

func (h *Handlers) messagesStreaming(c *gin.Context, requestedModel, upstreamModel string, upstreamReq []byte, start time.Time) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeAnthropicError(c, dispatch.NewBadRequest("streaming not supported"))
		return
	}

	headersSent := false
	usageRecorded := false
	sendHeaders := func(email string) {
		if headersSent {
			return
		}
		headersSent = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		// Usage is logged at time-to-first-byte, not stream end, per the
		// streaming happy-path behavior this gateway preserves.
		recordUsage(h, "claude", requestedModel, email, true, http.StatusOK, time.Since(start), "")
		usageRecorded = true
	}

	state := &claude.StreamState{}
	tried, err := h.Dispatcher.Do(c.Request.Context(), quotaGroupFor(upstreamModel), func(ctx context.Context, accessToken, projectID, email string) error {
		body := upstream.WrapperBody(projectID, upstreamModel, upstreamReq, upstream.ProtocolClaude, upstream.RequestTypeGenerateContent)
		frames, err := h.Upstream.Stream(ctx, accessToken, body)
		if err != nil {
			return err
		}

		sendHeaders(email)
		for frame := range frames {
			if frame.Err != nil {
				// Headers are already committed: surface this as a single
				// terminal SSE error event instead of returning to the
				// dispatcher, which would otherwise rotate identities and
				// re-invoke Stream mid-response.
				_, msg := statusAndMessage(frame.Err)
				fmt.Fprint(c.Writer, claude.ErrorEvent(msg))
				flusher.Flush()
				return nil
			}
			events := claude.StreamChunk(state, requestedModel, frame.Payload)
			if events == "" {
				continue
			}
			fmt.Fprint(c.Writer, events)
			flusher.Flush()
		}
		if tail := state.Done(); tail != "" {
			fmt.Fprint(c.Writer, tail)
			flusher.Flush()
		}
		return nil
	})

	if usageRecorded {
		return
	}

	status := http.StatusOK
	if err != nil {
		status, _ = statusAndMessage(err)
	}
	recordUsage(h, "claude", requestedModel, lastEmail(tried), err == nil, status, time.Since(start), errorCategory(err))
	if err != nil {
		writeAnthropicError(c, err)
	}
}

// CountTokens serves POST /v1/messages/count_tokens with the cheap
// character-based estimate (len(JSON)/4); an accurate tiktoken-based count
// is opt-in at the boundary per the operator's tokenizer configuration and
// is applied the same way the usage fallback in the OpenAI response
// translator estimates tokens when upstream omits usageMetadata.
func (h *Handlers) CountTokens(c *gin.Context) {
	rawJSON, err := readBody(c)
	if err != nil {
		writeAnthropicError(c, dispatch.NewBadRequest("reading request body: %v", err))
		return
	}
	estimate := int64(len(rawJSON) / 4)
	c.Data(http.StatusOK, "application/json", claude.TokenCount(estimate))
}
