package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/antigravity-proxy/gatewaycore/internal/dispatch"
	"github.com/antigravity-proxy/gatewaycore/internal/translator/gemini"
	"github.com/antigravity-proxy/gatewaycore/internal/upstream"
)

// GeminiGenerate serves POST /v1beta/models/{model}:generateContent and
// …:streamGenerateContent; the model path segment carries both the model
// name and the method as a colon suffix, since that's how the native
// Gemini SDK constructs the URL.
func (h *Handlers) GeminiGenerate(c *gin.Context) {
	modelAndMethod := c.Param("model")
	requestedModel, method, ok := strings.Cut(modelAndMethod, ":")
	if !ok {
		writeGeminiError(c, dispatch.NewBadRequest("missing :method suffix on model path"))
		return
	}
	streaming := method == "streamGenerateContent"
	if !streaming && method != "generateContent" {
		writeGeminiError(c, dispatch.NewBadRequest("unsupported method %q", method))
		return
	}

	rawJSON, err := readBody(c)
	if err != nil {
		writeGeminiError(c, dispatch.NewBadRequest("reading request body: %v", err))
		return
	}

	upstreamModel := h.Config.ResolveModel(requestedModel)
	upstreamReq, err := gemini.ToUpstream(rawJSON)
	if err != nil {
		writeGeminiError(c, dispatch.NewBadRequest("translating request: %v", err))
		return
	}

	start := time.Now()
	if streaming {
		h.geminiStreaming(c, requestedModel, upstreamModel, upstreamReq, start)
		return
	}
	h.geminiNonStreaming(c, requestedModel, upstreamModel, upstreamReq, start)
}

func (h *Handlers) geminiNonStreaming(c *gin.Context, requestedModel, upstreamModel string, upstreamReq []byte, start time.Time) {
	var respBody []byte
	tried, err := h.Dispatcher.Do(c.Request.Context(), quotaGroupFor(upstreamModel), func(ctx context.Context, accessToken, projectID, email string) error {
		body := upstream.WrapperBody(projectID, upstreamModel, upstreamReq, upstream.ProtocolGemini, upstream.RequestTypeGenerateContent)
		raw, err := h.Upstream.Unary(ctx, accessToken, body)
		if err != nil {
			return err
		}
		respBody = gemini.FromUpstream(raw)
		return nil
	})

	status := http.StatusOK
	if err != nil {
		status, _ = statusAndMessage(err)
	}
	recordUsage(h, "gemini", requestedModel, lastEmail(tried), err == nil, status, time.Since(start), errorCategory(err))
	if err != nil {
		writeGeminiError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", respBody)
}

func (h *Handlers) geminiStreaming(c *gin.Context, requestedModel, upstreamModel string, upstreamReq []byte, start time.Time) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeGeminiError(c, dispatch.NewBadRequest("streaming not supported"))
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
		recordUsage(h, "gemini", requestedModel, email, true, http.StatusOK, time.Since(start), "")
		usageRecorded = true
	}

	tried, err := h.Dispatcher.Do(c.Request.Context(), quotaGroupFor(upstreamModel), func(ctx context.Context, accessToken, projectID, email string) error {
		body := upstream.WrapperBody(projectID, upstreamModel, upstreamReq, upstream.ProtocolGemini, upstream.RequestTypeGenerateContent)
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
				status, msg := statusAndMessage(frame.Err)
				fmt.Fprintf(c.Writer, "data: %s\n\n", gemini.ErrorEvent(status, msg))
				flusher.Flush()
				return nil
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", gemini.StreamChunk(frame.Payload))
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
	recordUsage(h, "gemini", requestedModel, lastEmail(tried), err == nil, status, time.Since(start), errorCategory(err))
	if err != nil {
		writeGeminiError(c, err)
	}
}
