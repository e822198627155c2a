package claude

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestToUpstreamSystemStringAndTextMessage(t *testing.T) {
	in := []byte(`{"model":"claude-3-5-sonnet","system":"be terse","max_tokens":256,"messages":[
		{"role":"user","content":"hello"}
	]}`)
	out, err := ToUpstream(in)
	if err != nil {
		t.Fatal(err)
	}
	root := gjson.ParseBytes(out)
	if got := root.Get("systemInstruction.parts.0.text").String(); got != "be terse" {
		t.Fatalf("want system instruction, got %q", got)
	}
	if got := root.Get("contents.0.parts.0.text").String(); got != "hello" {
		t.Fatalf("want hello text part, got %q", got)
	}
	if got := root.Get("generationConfig.maxOutputTokens").Int(); got != 256 {
		t.Fatalf("want max tokens 256, got %d", got)
	}
}

func TestToUpstreamSystemArrayOfTextBlocks(t *testing.T) {
	in := []byte(`{"system":[{"type":"text","text":"a"},{"type":"text","text":"b"}],"messages":[]}`)
	out, err := ToUpstream(in)
	if err != nil {
		t.Fatal(err)
	}
	if got := gjson.GetBytes(out, "systemInstruction.parts.0.text").String(); got != "a\n\nb" {
		t.Fatalf("want joined system text, got %q", got)
	}
}

func TestToUpstreamToolUseAndToolResult(t *testing.T) {
	in := []byte(`{"messages":[
		{"role":"assistant","content":[{"type":"tool_use","id":"tu_1","name":"lookup","input":{"q":"x"}}]},
		{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu_1","content":"42"}]}
	]}`)
	out, err := ToUpstream(in)
	if err != nil {
		t.Fatal(err)
	}
	if got := gjson.GetBytes(out, "contents.0.parts.0.functionCall.name").String(); got != "lookup" {
		t.Fatalf("want functionCall name lookup, got %q", got)
	}
	if got := gjson.GetBytes(out, "contents.1.parts.0.functionResponse.response.result").String(); got != "42" {
		t.Fatalf("want functionResponse result 42, got %q", got)
	}
	if got := gjson.GetBytes(out, "contents.1.parts.0.functionResponse.name").String(); got != "tool" {
		t.Fatalf("want functionResponse name literal \"tool\", got %q", got)
	}
}

func TestToUpstreamThinkingBlockAndBudget(t *testing.T) {
	in := []byte(`{"thinking":{"type":"enabled","budget_tokens":2048},"messages":[
		{"role":"assistant","content":[{"type":"thinking","thinking":"reasoning...","signature":"sig123"},{"type":"text","text":"answer"}]}
	]}`)
	out, err := ToUpstream(in)
	if err != nil {
		t.Fatal(err)
	}
	if got := gjson.GetBytes(out, "contents.0.parts.0.thought").Bool(); !got {
		t.Fatalf("want first part marked thought")
	}
	if got := gjson.GetBytes(out, "contents.0.parts.0.thoughtSignature").String(); got != "sig123" {
		t.Fatalf("want thought signature preserved, got %q", got)
	}
	if got := gjson.GetBytes(out, "generationConfig.thinkingConfig.thinkingBudget").Int(); got != 2048 {
		t.Fatalf("want thinking budget 2048, got %d", got)
	}
}

func TestToUpstreamWebSearchToolMapsToGoogleSearch(t *testing.T) {
	in := []byte(`{"messages":[],"tools":[{"type":"web_search_20250305","name":"web_search"}]}`)
	out, err := ToUpstream(in)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	gjson.GetBytes(out, "tools").ForEach(func(_, tool gjson.Result) bool {
		if tool.Get("googleSearch").Exists() {
			found = true
		}
		return true
	})
	if !found {
		t.Fatalf("want googleSearch tool entry, got %s", out)
	}
}

func TestToUpstreamWebSearchToolMatchesAnyVersionByPrefix(t *testing.T) {
	in := []byte(`{"messages":[],"tools":[{"type":"web_search_20251001","name":"some_future_search"}]}`)
	out, err := ToUpstream(in)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	gjson.GetBytes(out, "tools").ForEach(func(_, tool gjson.Result) bool {
		if tool.Get("googleSearch").Exists() {
			found = true
		}
		return true
	})
	if !found {
		t.Fatalf("want a future web_search_* type to still map to googleSearch, got %s", out)
	}
}
