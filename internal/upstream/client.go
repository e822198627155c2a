// Package upstream issues the two HTTPS call shapes the cloudcode-pa
// v1internal endpoint supports: a unary generateContent call and a
// streaming streamGenerateContent call framed as Server-Sent Events.
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/antigravity-proxy/gatewaycore/internal/misc"
)

const (
	baseURL      = "https://cloudcode-pa.googleapis.com"
	apiVersion   = "v1internal"
	userAgent    = "google-api-nodejs-client/9.15.1"
	clientTag    = "google-cloud-sdk vscode_cloudshelleditor/0.1"
	callTimeout  = 300 * time.Second
	scannerLimit = 8 * 1024 * 1024
)

// RequestType mirrors the southbound wrapper's requestType field.
type RequestType string

const (
	RequestTypeGenerateContent RequestType = "generate_content"
	RequestTypeImageGen        RequestType = "image_gen"
)

// ProtocolTag prefixes the generated request id so upstream logs (and ours)
// can tell which wire protocol originated a call.
type ProtocolTag string

const (
	ProtocolOpenAI ProtocolTag = "openai"
	ProtocolClaude ProtocolTag = "claude"
	ProtocolGemini ProtocolTag = "gemini"
	ProtocolAgent  ProtocolTag = "agent"
)

// HTTPError reports a non-2xx upstream response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream: http %d: %s", e.Status, truncate(e.Body, 300))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Frame is one decoded SSE data line from a streaming response, already
// unwrapped of the `{"response": ...}` unary/stream wrapper when present.
type Frame struct {
	Payload []byte
	Err     error
}

// Client issues calls against the cloudcode-pa upstream.
type Client struct {
	httpClient *http.Client
}

// New builds a Client with the fixed 300s per-call deadline the spec
// requires; the context passed to Unary/Stream may impose a tighter one.
func New() *Client {
	return &Client{httpClient: &http.Client{Timeout: callTimeout}}
}

// WrapperBody builds the southbound `{project, requestId, request, model,
// userAgent, requestType}` envelope.
func WrapperBody(project, model string, request json.RawMessage, protocol ProtocolTag, reqType RequestType) []byte {
	requestID := string(protocol) + "-" + uuid.NewString()
	out := map[string]any{
		"project":     project,
		"requestId":   requestID,
		"request":     request,
		"model":       model,
		"userAgent":   clientTag,
		"requestType": reqType,
	}
	body, _ := json.Marshal(out)
	return body
}

func (c *Client) newRequest(ctx context.Context, method, accessToken string, body []byte, stream bool) (*http.Request, error) {
	url := fmt.Sprintf("%s/%s:%s", baseURL, apiVersion, method)
	if stream {
		url += "?alt=sse"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	misc.EnsureHeader(req.Header, nil, "Content-Type", "application/json")
	misc.EnsureHeader(req.Header, nil, "User-Agent", userAgent)
	req.Host = "cloudcode-pa.googleapis.com"
	return req, nil
}

// Unary issues a generateContent call and returns the (possibly
// response-unwrapped) JSON body.
func (c *Client) Unary(ctx context.Context, accessToken string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, "generateContent", accessToken, body, false)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(raw)}
	}
	return unwrapResponse(raw), nil
}

// Stream issues a streamGenerateContent call and returns a channel of
// unwrapped frames. The channel is closed when the body is exhausted, the
// context is cancelled, or a scan error occurs (reported as a final Frame
// with Err set).
func (c *Client) Stream(ctx context.Context, accessToken string, body []byte) (<-chan Frame, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)

	req, err := c.newRequest(callCtx, "streamGenerateContent", accessToken, body, true)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(raw)}
	}

	out := make(chan Frame)
	go func() {
		defer cancel()
		defer resp.Body.Close()
		defer close(out)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), scannerLimit)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" || data == "[DONE]" {
				continue
			}
			select {
			case out <- Frame{Payload: unwrapResponse([]byte(data))}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- Frame{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// unwrapResponse strips the top-level `{"response": ...}` envelope some
// upstream responses and stream chunks carry; unwrapped payloads pass
// through unchanged.
func unwrapResponse(raw []byte) []byte {
	inner := gjson.GetBytes(raw, "response")
	if inner.Exists() && inner.IsObject() {
		return []byte(inner.Raw)
	}
	return raw
}
