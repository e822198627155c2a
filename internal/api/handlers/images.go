package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/antigravity-proxy/gatewaycore/internal/dispatch"
	"github.com/antigravity-proxy/gatewaycore/internal/tokenpool"
	"github.com/antigravity-proxy/gatewaycore/internal/translator/images"
	"github.com/antigravity-proxy/gatewaycore/internal/upstream"
)

// ImagesGenerate serves POST /v1/images/generations. Images are never
// streamed; the upstream call always draws from the image_gen quota group
// rather than the chat/messages pools.
func (h *Handlers) ImagesGenerate(c *gin.Context) {
	rawJSON, err := readBody(c)
	if err != nil {
		writeOpenAIError(c, dispatch.NewBadRequest("reading request body: %v", err))
		return
	}

	requestedModel := gjson.GetBytes(rawJSON, "model").String()
	upstreamModel := h.Config.ResolveModel(requestedModel)
	responseFormat := gjson.GetBytes(rawJSON, "response_format").String()
	upstreamReq := images.ToUpstream(rawJSON)

	start := time.Now()
	var respBody []byte
	tried, err := h.Dispatcher.Do(c.Request.Context(), tokenpool.QuotaImageGen, func(ctx context.Context, accessToken, projectID, email string) error {
		body := upstream.WrapperBody(projectID, upstreamModel, upstreamReq, upstream.ProtocolOpenAI, upstream.RequestTypeImageGen)
		raw, err := h.Upstream.Unary(ctx, accessToken, body)
		if err != nil {
			return err
		}
		respBody = images.FromUpstream(raw, responseFormat)
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
