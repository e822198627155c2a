package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/antigravity-proxy/gatewaycore/internal/dispatch"
	"github.com/antigravity-proxy/gatewaycore/internal/translator/openai"
	"github.com/antigravity-proxy/gatewaycore/internal/upstream"
)

// ChatCompletions serves POST /v1/chat/completions.
func (h *Handlers) ChatCompletions(c *gin.Context) {
	rawJSON, err := readBody(c)
	if err != nil {
		writeOpenAIError(c, dispatch.NewBadRequest("reading request body: %v", err))
		return
	}

	requestedModel := gjson.GetBytes(rawJSON, "model").String()
	upstreamModel := h.Config.ResolveModel(requestedModel)
	streaming := gjson.GetBytes(rawJSON, "stream").Bool()

	upstreamReq, err := openai.ToUpstream(rawJSON)
	if err != nil {
		writeOpenAIError(c, dispatch.NewBadRequest("translating request: %v", err))
		return
	}

	start := time.Now()
	if streaming {
		h.chatStreaming(c, requestedModel, upstreamModel, upstreamReq, start)
		return
	}
	h.chatNonStreaming(c, requestedModel, upstreamModel, upstreamReq, rawJSON, start)
}

func (h *Handlers) chatNonStreaming(c *gin.Context, requestedModel, upstreamModel string, upstreamReq, originalRawJSON []byte, start time.Time) {
	var respBody []byte
	tried, err := h.Dispatcher.Do(c.Request.Context(), quotaGroupFor(upstreamModel), func(ctx context.Context, accessToken, projectID, email string) error {
		body := upstream.WrapperBody(projectID, upstreamModel, upstreamReq, upstream.ProtocolOpenAI, upstream.RequestTypeGenerateContent)
		raw, err := h.Upstream.Unary(ctx, accessToken, body)
		if err != nil {
			return err
		}
		respBody = openai.FromUpstream(requestedModel, raw)
		respBody = withFallbackUsage(requestedModel, originalRawJSON, respBody)
		return nil
	})

	status := http.StatusOK
	if err != nil {
		status, _ = statusAndMessage(err)
	}
	recordUsage(h, "openai", requestedModel, lastEmail(tried), err == nil, status, time.Since(start), errorCategory(err))
	if err != nil {
		writeOpenAIError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", respBody)
}

func (h *Handlers) chatStreaming(c *gin.Context, requestedModel, upstreamModel string, upstreamReq []byte, start time.Time) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeOpenAIError(c, dispatch.NewBadRequest("streaming not supported"))
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
		recordUsage(h, "openai", requestedModel, email, true, http.StatusOK, time.Since(start), "")
		usageRecorded = true
	}

	tried, err := h.Dispatcher.Do(c.Request.Context(), quotaGroupFor(upstreamModel), func(ctx context.Context, accessToken, projectID, email string) error {
		body := upstream.WrapperBody(projectID, upstreamModel, upstreamReq, upstream.ProtocolOpenAI, upstream.RequestTypeGenerateContent)
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
				errFrame := fmt.Sprintf(`{"error":{"message":%q,"type":"server_error"}}`, msg)
				fmt.Fprintf(c.Writer, "data: %s\n\n", errFrame)
				flusher.Flush()
				return nil
			}
			chunk := openai.StreamChunk(requestedModel, frame.Payload)
			fmt.Fprintf(c.Writer, "data: %s\n\n", chunk)
			flusher.Flush()
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", openai.DoneSentinel)
		flusher.Flush()
		return nil
	})

	if usageRecorded {
		return
	}

	status := http.StatusOK
	if err != nil {
		status, _ = statusAndMessage(err)
	}
	recordUsage(h, "openai", requestedModel, lastEmail(tried), err == nil, status, time.Since(start), errorCategory(err))
	if err != nil {
		writeOpenAIError(c, err)
	}
}
