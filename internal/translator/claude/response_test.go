package claude

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestFromUpstreamTextRoundTrip(t *testing.T) {
	upstream := []byte(`{"candidates":[{"content":{"parts":[{"text":"pong"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":1,"totalTokenCount":2}}`)
	out := FromUpstream("claude-3-5-sonnet", upstream)
	root := gjson.ParseBytes(out)

	if got := root.Get("content.0.type").String(); got != "text" {
		t.Fatalf("want text block, got %q", got)
	}
	if got := root.Get("content.0.text").String(); got != "pong" {
		t.Fatalf("want round-tripped text pong, got %q", got)
	}
	if got := root.Get("stop_reason").String(); got != "end_turn" {
		t.Fatalf("want end_turn, got %q", got)
	}
}

func TestFromUpstreamToolUseSetsStopReason(t *testing.T) {
	upstream := []byte(`{"candidates":[{"content":{"parts":[{"functionCall":{"name":"lookup","args":{"q":"x"}}}]},"finishReason":"STOP"}]}`)
	out := FromUpstream("claude-3-5-sonnet", upstream)
	root := gjson.ParseBytes(out)
	if got := root.Get("stop_reason").String(); got != "tool_use" {
		t.Fatalf("want tool_use stop reason, got %q", got)
	}
	if got := root.Get("content.0.type").String(); got != "tool_use" {
		t.Fatalf("want tool_use block, got %q", got)
	}
	if got := root.Get("content.0.name").String(); got != "lookup" {
		t.Fatalf("want tool name lookup, got %q", got)
	}
}

func TestFromUpstreamThinkingThenTextBlocks(t *testing.T) {
	upstream := []byte(`{"candidates":[{"content":{"parts":[
		{"text":"let me think","thought":true,"thoughtSignature":"sig1"},
		{"text":"the answer"}
	]},"finishReason":"STOP"}]}`)
	out := FromUpstream("claude-3-5-sonnet", upstream)
	root := gjson.ParseBytes(out)
	if got := root.Get("content.0.type").String(); got != "thinking" {
		t.Fatalf("want first block thinking, got %q", got)
	}
	if got := root.Get("content.0.signature").String(); got != "sig1" {
		t.Fatalf("want signature preserved, got %q", got)
	}
	if got := root.Get("content.1.type").String(); got != "text" {
		t.Fatalf("want second block text, got %q", got)
	}
}

func TestStreamChunkEmitsMessageStartOnce(t *testing.T) {
	state := &StreamState{}
	chunk1 := []byte(`{"candidates":[{"content":{"parts":[{"text":"a"}]}}]}`)
	chunk2 := []byte(`{"candidates":[{"content":{"parts":[{"text":"b"}]}}]}`)

	out1 := StreamChunk(state, "claude-3-5-sonnet", chunk1)
	out2 := StreamChunk(state, "claude-3-5-sonnet", chunk2)

	if !strings.Contains(out1, "event: message_start") {
		t.Fatalf("want message_start in first chunk, got %s", out1)
	}
	if strings.Contains(out2, "event: message_start") {
		t.Fatalf("want no second message_start, got %s", out2)
	}
	if !strings.Contains(out1, "event: content_block_start") {
		t.Fatalf("want content_block_start in first chunk, got %s", out1)
	}
	if strings.Contains(out2, "event: content_block_start") {
		t.Fatalf("want continuing text block without a new content_block_start, got %s", out2)
	}
}

func TestStreamChunkFinalEventsOnUsageMetadata(t *testing.T) {
	state := &StreamState{}
	StreamChunk(state, "claude-3-5-sonnet", []byte(`{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}`))
	final := StreamChunk(state, "claude-3-5-sonnet", []byte(`{"candidates":[{"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":2,"totalTokenCount":7}}`))

	if !strings.Contains(final, "event: content_block_stop") {
		t.Fatalf("want content_block_stop before final events, got %s", final)
	}
	if !strings.Contains(final, "event: message_delta") {
		t.Fatalf("want message_delta, got %s", final)
	}
	if !strings.Contains(final, "event: message_stop") {
		t.Fatalf("want message_stop, got %s", final)
	}
	if !strings.Contains(final, `"stop_reason":"end_turn"`) {
		t.Fatalf("want end_turn stop reason, got %s", final)
	}
}

func TestStreamChunkToolUseTransition(t *testing.T) {
	state := &StreamState{}
	StreamChunk(state, "claude-3-5-sonnet", []byte(`{"candidates":[{"content":{"parts":[{"text":"thinking aloud"}]}}]}`))
	out := StreamChunk(state, "claude-3-5-sonnet", []byte(`{"candidates":[{"content":{"parts":[{"functionCall":{"name":"lookup","args":{"q":"x"}}}]}}]}`))

	if !strings.Contains(out, "event: content_block_stop") {
		t.Fatalf("want text block closed before tool_use starts, got %s", out)
	}
	if !strings.Contains(out, `"type":"tool_use"`) {
		t.Fatalf("want tool_use content_block_start, got %s", out)
	}
	if !state.hasToolUse {
		t.Fatalf("want hasToolUse tracked on state")
	}
}

func TestErrorEventShapeAndTokenCount(t *testing.T) {
	ev := ErrorEvent("upstream exploded")
	if !strings.Contains(ev, "event: error") || !strings.Contains(ev, "upstream exploded") {
		t.Fatalf("want error event with message, got %s", ev)
	}
	if got := gjson.GetBytes(TokenCount(42), "input_tokens").Int(); got != 42 {
		t.Fatalf("want input_tokens 42, got %d", got)
	}
}
