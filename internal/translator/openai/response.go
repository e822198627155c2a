package openai

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var toolCallSeq uint64

func nextToolCallID(name string) string {
	return fmt.Sprintf("call_%s_%d", name, atomic.AddUint64(&toolCallSeq, 1))
}

// FromUpstream converts one complete upstream response into an OpenAI
// chat.completion body.
func FromUpstream(modelName string, rawJSON []byte) []byte {
	root := gjson.ParseBytes(rawJSON)
	out := `{"object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant"}}]}`
	out, _ = sjson.Set(out, "model", modelName)
	out, _ = sjson.Set(out, "created", time.Now().Unix())

	candidate := root.Get("candidates.0")
	content, toolCalls, hasFunctionCall := extractParts(candidate.Get("content.parts"))

	if content != "" {
		out, _ = sjson.Set(out, "choices.0.message.content", content)
	} else {
		out, _ = sjson.Set(out, "choices.0.message.content", nil)
	}
	if len(toolCalls) > 0 {
		toolCallsJSON := "[]"
		for _, tc := range toolCalls {
			toolCallsJSON, _ = sjson.SetRaw(toolCallsJSON, "-1", tc)
		}
		out, _ = sjson.SetRaw(out, "choices.0.message.tool_calls", toolCallsJSON)
	}

	out, _ = sjson.Set(out, "choices.0.finish_reason", finishReason(candidate.Get("finishReason").String(), hasFunctionCall))

	if usage := root.Get("usageMetadata"); usage.Exists() {
		out, _ = sjson.SetRaw(out, "usage", buildUsage(usage))
	}
	return []byte(out)
}

// StreamChunk converts one upstream SSE frame into an OpenAI
// chat.completion.chunk body (without the leading "data: "/trailing
// newlines; the HTTP handler owns SSE framing).
func StreamChunk(modelName string, rawJSON []byte) []byte {
	root := gjson.ParseBytes(rawJSON)
	out := `{"object":"chat.completion.chunk","choices":[{"index":0,"delta":{}}]}`
	out, _ = sjson.Set(out, "model", modelName)
	out, _ = sjson.Set(out, "created", time.Now().Unix())

	candidate := root.Get("candidates.0")
	content, toolCalls, hasFunctionCall := extractParts(candidate.Get("content.parts"))

	if content != "" {
		out, _ = sjson.Set(out, "choices.0.delta.content", content)
	}
	if len(toolCalls) > 0 {
		toolCallsJSON := "[]"
		for i, tc := range toolCalls {
			tc, _ = sjson.Set(tc, "index", i)
			toolCallsJSON, _ = sjson.SetRaw(toolCallsJSON, "-1", tc)
		}
		out, _ = sjson.SetRaw(out, "choices.0.delta.tool_calls", toolCallsJSON)
	}

	if fr := candidate.Get("finishReason"); fr.Exists() {
		out, _ = sjson.Set(out, "choices.0.finish_reason", finishReason(fr.String(), hasFunctionCall))
	}
	if usage := root.Get("usageMetadata"); usage.Exists() {
		out, _ = sjson.SetRaw(out, "usage", buildUsage(usage))
	}
	return []byte(out)
}

// DoneSentinel is the terminal OpenAI streaming frame body.
const DoneSentinel = "[DONE]"

func extractParts(parts gjson.Result) (text string, toolCalls []string, hasFunctionCall bool) {
	var b strings.Builder
	parts.ForEach(func(_, part gjson.Result) bool {
		if t := part.Get("text"); t.Exists() && !part.Get("thought").Bool() {
			b.WriteString(t.String())
		}
		if fc := part.Get("functionCall"); fc.Exists() {
			hasFunctionCall = true
			name := fc.Get("name").String()
			tc := `{"type":"function","function":{"name":"","arguments":""}}`
			tc, _ = sjson.Set(tc, "id", nextToolCallID(name))
			tc, _ = sjson.Set(tc, "function.name", name)
			args := fc.Get("args")
			argsStr := "{}"
			if args.Exists() {
				argsStr = args.Raw
			}
			tc, _ = sjson.Set(tc, "function.arguments", argsStr)
			toolCalls = append(toolCalls, tc)
		}
		return true
	})
	return b.String(), toolCalls, hasFunctionCall
}

func finishReason(upstream string, hasFunctionCall bool) string {
	switch {
	case hasFunctionCall:
		return "tool_calls"
	case upstream == "MAX_TOKENS":
		return "length"
	default:
		return "stop"
	}
}

func buildUsage(usage gjson.Result) string {
	out := "{}"
	prompt := usage.Get("promptTokenCount").Int()
	cached := usage.Get("cachedContentTokenCount").Int()
	thoughts := usage.Get("thoughtsTokenCount").Int()
	completion := usage.Get("candidatesTokenCount").Int()
	total := usage.Get("totalTokenCount").Int()

	out, _ = sjson.Set(out, "prompt_tokens", prompt-cached+thoughts)
	out, _ = sjson.Set(out, "completion_tokens", completion)
	out, _ = sjson.Set(out, "total_tokens", total)
	if thoughts > 0 {
		out, _ = sjson.Set(out, "completion_tokens_details.reasoning_tokens", thoughts)
	}
	if cached > 0 {
		out, _ = sjson.Set(out, "prompt_tokens_details.cached_tokens", cached)
	}
	return out
}
