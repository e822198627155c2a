package claude

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FromUpstream converts one complete upstream response into an Anthropic
// Messages response body.
func FromUpstream(modelName string, rawJSON []byte) []byte {
	root := gjson.ParseBytes(rawJSON)

	promptTokens := root.Get("usageMetadata.promptTokenCount").Int()
	cachedTokens := root.Get("usageMetadata.cachedContentTokenCount").Int()
	candidateTokens := root.Get("usageMetadata.candidatesTokenCount").Int()
	thoughtTokens := root.Get("usageMetadata.thoughtsTokenCount").Int()
	totalTokens := root.Get("usageMetadata.totalTokenCount").Int()
	outputTokens := candidateTokens + thoughtTokens
	if outputTokens == 0 && totalTokens > 0 {
		outputTokens = totalTokens - promptTokens
		if outputTokens < 0 {
			outputTokens = 0
		}
	}

	out := `{"type":"message","role":"assistant","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":0,"output_tokens":0}}`
	out, _ = sjson.Set(out, "model", modelName)
	out, _ = sjson.Set(out, "usage.input_tokens", promptTokens-cachedTokens)
	out, _ = sjson.Set(out, "usage.output_tokens", outputTokens)
	if cachedTokens > 0 {
		out, _ = sjson.Set(out, "usage.cache_read_input_tokens", cachedTokens)
	}

	var textBuilder, thinkingBuilder strings.Builder
	thinkingSig := ""
	hasToolCall := false
	toolCounter := 0

	flushText := func() {
		if textBuilder.Len() == 0 {
			return
		}
		block := `{"type":"text","text":""}`
		block, _ = sjson.Set(block, "text", textBuilder.String())
		out, _ = sjson.SetRaw(out, "content.-1", block)
		textBuilder.Reset()
	}
	flushThinking := func() {
		if thinkingBuilder.Len() == 0 && thinkingSig == "" {
			return
		}
		block := `{"type":"thinking","thinking":""}`
		block, _ = sjson.Set(block, "thinking", thinkingBuilder.String())
		if thinkingSig != "" {
			block, _ = sjson.Set(block, "signature", thinkingSig)
		}
		out, _ = sjson.SetRaw(out, "content.-1", block)
		thinkingBuilder.Reset()
		thinkingSig = ""
	}

	parts := root.Get("candidates.0.content.parts")
	parts.ForEach(func(_, part gjson.Result) bool {
		isThought := part.Get("thought").Bool()
		if text := part.Get("text"); text.Exists() && text.String() != "" {
			if isThought {
				flushText()
				thinkingBuilder.WriteString(text.String())
			} else {
				flushThinking()
				textBuilder.WriteString(text.String())
			}
		}
		if sig := part.Get("thoughtSignature"); isThought && sig.Exists() && sig.String() != "" {
			thinkingSig = sig.String()
		}
		if fc := part.Get("functionCall"); fc.Exists() {
			flushThinking()
			flushText()
			hasToolCall = true
			toolCounter++
			block := `{"type":"tool_use","id":"","name":"","input":{}}`
			id := fc.Get("id").String()
			if id == "" {
				id = fmt.Sprintf("tool_%d", toolCounter)
			}
			block, _ = sjson.Set(block, "id", id)
			block, _ = sjson.Set(block, "name", fc.Get("name").String())
			if args := fc.Get("args"); args.Exists() && args.IsObject() {
				block, _ = sjson.SetRaw(block, "input", args.Raw)
			}
			out, _ = sjson.SetRaw(out, "content.-1", block)
		}
		return true
	})
	flushThinking()
	flushText()

	out, _ = sjson.Set(out, "stop_reason", stopReasonFor(hasToolCall, root.Get("candidates.0.finishReason").String()))
	return []byte(out)
}

func stopReasonFor(hasToolCall bool, finishReason string) string {
	if hasToolCall {
		return "tool_use"
	}
	if finishReason == "MAX_TOKENS" {
		return "max_tokens"
	}
	return "end_turn"
}

// StreamState tracks cross-chunk sequencing for the Anthropic SSE event
// stream (message_start -> content_block_start/delta/stop* -> message_delta
// -> message_stop). One StreamState is created per streaming request.
type StreamState struct {
	started        bool
	blockOpen      bool
	blockType      string // "text", "thinking", or "tool_use"
	blockIndex     int
	hasContent     bool
	hasToolUse     bool
	finishReason   string
	promptTokens   int64
	outputTokens   int64
	cachedTokens   int64
	sentFinalEvent bool
}

var toolUseIDCounter uint64

func nextToolUseID(name string) string {
	return fmt.Sprintf("%s-%d", name, atomic.AddUint64(&toolUseIDCounter, 1))
}

func sseEvent(event, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}

// StreamChunk converts one upstream SSE frame into zero or more Anthropic
// SSE events (already framed with "event:"/"data:" lines; the HTTP handler
// writes them through unmodified).
func StreamChunk(state *StreamState, modelName string, rawJSON []byte) string {
	var out strings.Builder

	if !state.started {
		state.started = true
		start := `{"type":"message_start","message":{"id":"","type":"message","role":"assistant","content":[],"model":"","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":0,"output_tokens":0}}}`
		start, _ = sjson.Set(start, "message.model", modelName)
		out.WriteString(sseEvent("message_start", start))
	}

	root := gjson.ParseBytes(rawJSON)
	closeBlock := func() {
		if state.blockOpen {
			out.WriteString(sseEvent("content_block_stop", fmt.Sprintf(`{"type":"content_block_stop","index":%d}`, state.blockIndex)))
			state.blockOpen = false
			state.blockIndex++
		}
	}

	parts := root.Get("candidates.0.content.parts")
	parts.ForEach(func(_, part gjson.Result) bool {
		isThought := part.Get("thought").Bool()
		if text := part.Get("text"); text.Exists() {
			wantType := "text"
			if isThought {
				wantType = "thinking"
			}
			if text.String() != "" {
				if !state.blockOpen || state.blockType != wantType {
					closeBlock()
					var blockStart string
					if wantType == "thinking" {
						blockStart = fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"thinking","thinking":""}}`, state.blockIndex)
					} else {
						blockStart = fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"text","text":""}}`, state.blockIndex)
					}
					out.WriteString(sseEvent("content_block_start", blockStart))
					state.blockOpen = true
					state.blockType = wantType
				}
				deltaType := "text_delta"
				deltaField := "text"
				if wantType == "thinking" {
					deltaType = "thinking_delta"
					deltaField = "thinking"
				}
				delta := fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"%s"}}`, state.blockIndex, deltaType)
				delta, _ = sjson.Set(delta, "delta."+deltaField, text.String())
				out.WriteString(sseEvent("content_block_delta", delta))
				state.hasContent = true
			}
		}
		if sig := part.Get("thoughtSignature"); isThought && sig.Exists() && sig.String() != "" && state.blockOpen && state.blockType == "thinking" {
			delta := fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"signature_delta"}}`, state.blockIndex)
			delta, _ = sjson.Set(delta, "delta.signature", sig.String())
			out.WriteString(sseEvent("content_block_delta", delta))
		}
		if fc := part.Get("functionCall"); fc.Exists() {
			closeBlock()
			state.hasToolUse = true
			state.hasContent = true
			name := fc.Get("name").String()
			id := fc.Get("id").String()
			if id == "" {
				id = nextToolUseID(name)
			}
			blockStart := fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"tool_use","id":"","name":"","input":{}}}`, state.blockIndex)
			blockStart, _ = sjson.Set(blockStart, "content_block.id", id)
			blockStart, _ = sjson.Set(blockStart, "content_block.name", name)
			out.WriteString(sseEvent("content_block_start", blockStart))
			state.blockOpen = true
			state.blockType = "tool_use"
			if args := fc.Get("args"); args.Exists() {
				delta := fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"input_json_delta"}}`, state.blockIndex)
				delta, _ = sjson.SetRaw(delta, "delta.partial_json", args.Raw)
				out.WriteString(sseEvent("content_block_delta", delta))
			}
		}
		return true
	})

	if fr := root.Get("candidates.0.finishReason"); fr.Exists() {
		state.finishReason = fr.String()
	}
	if usage := root.Get("usageMetadata"); usage.Exists() {
		state.cachedTokens = usage.Get("cachedContentTokenCount").Int()
		state.promptTokens = usage.Get("promptTokenCount").Int() - state.cachedTokens
		candidates := usage.Get("candidatesTokenCount").Int()
		thoughts := usage.Get("thoughtsTokenCount").Int()
		total := usage.Get("totalTokenCount").Int()
		state.outputTokens = candidates + thoughts
		if state.outputTokens == 0 && total > 0 {
			state.outputTokens = total - state.promptTokens
			if state.outputTokens < 0 {
				state.outputTokens = 0
			}
		}
		closeBlock()
		out.WriteString(finalEvents(state))
	}

	return out.String()
}

// Done finalizes a stream that ended without ever carrying usage metadata
// (e.g. the upstream connection closed after the last content frame).
func (s *StreamState) Done() string {
	if !s.hasContent || s.sentFinalEvent {
		return ""
	}
	var out strings.Builder
	if s.blockOpen {
		out.WriteString(sseEvent("content_block_stop", fmt.Sprintf(`{"type":"content_block_stop","index":%d}`, s.blockIndex)))
		s.blockOpen = false
	}
	out.WriteString(finalEvents(s))
	return out.String()
}

func finalEvents(state *StreamState) string {
	if state.sentFinalEvent || !state.hasContent {
		return ""
	}
	stopReason := stopReasonFor(state.hasToolUse, state.finishReason)
	delta := fmt.Sprintf(`{"type":"message_delta","delta":{"stop_reason":"%s","stop_sequence":null},"usage":{"input_tokens":%d,"output_tokens":%d}}`,
		stopReason, state.promptTokens, state.outputTokens)
	if state.cachedTokens > 0 {
		delta, _ = sjson.Set(delta, "usage.cache_read_input_tokens", state.cachedTokens)
	}
	var out strings.Builder
	out.WriteString(sseEvent("message_delta", delta))
	out.WriteString(sseEvent("message_stop", `{"type":"message_stop"}`))
	state.sentFinalEvent = true
	return out.String()
}

// ErrorEvent builds the single "error" SSE event the spec requires on a
// mid-stream failure instead of silently truncating the connection.
func ErrorEvent(message string) string {
	data := `{"type":"error","error":{"type":"api_error","message":""}}`
	data, _ = sjson.Set(data, "error.message", message)
	return sseEvent("error", data)
}

// TokenCount builds the count_tokens response body.
func TokenCount(count int64) []byte {
	out := `{"input_tokens":0}`
	out, _ = sjson.Set(out, "input_tokens", count)
	return []byte(out)
}
