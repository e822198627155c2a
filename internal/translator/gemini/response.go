package gemini

import (
	"net/http"

	"github.com/tidwall/sjson"
)

// FromUpstream returns an upstream response unwrapped for the native
// Gemini surface. The wire format is already a generateContent response
// (candidates/usageMetadata), so no field-level translation is needed —
// the upstream client's envelope unwrapping (see internal/upstream) has
// already stripped the southbound `response` wrapper.
func FromUpstream(rawJSON []byte) []byte {
	return rawJSON
}

// StreamChunk returns one upstream SSE frame unchanged for the native
// Gemini streamGenerateContent surface.
func StreamChunk(rawJSON []byte) []byte {
	return rawJSON
}

// ErrorEvent builds a single terminal frame in the same Google API error
// shape writeGeminiError uses for the non-streaming surface, for a failure
// that occurs after the stream has already started.
func ErrorEvent(status int, message string) []byte {
	out := `{"error":{"code":0,"message":"","status":""}}`
	out, _ = sjson.Set(out, "error.code", status)
	out, _ = sjson.Set(out, "error.message", message)
	out, _ = sjson.Set(out, "error.status", http.StatusText(status))
	return []byte(out)
}
