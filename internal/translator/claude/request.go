// Package claude translates between the Anthropic Messages wire format and
// the upstream request shape. Grounded on the teacher's
// internal/translator/antigravity/claude package, simplified to drop the
// thinking-signature cache (this system treats every signature the client
// sends as authoritative instead of round-tripping it through a cache —
// see DESIGN.md) while keeping the same part-by-part content walk.
package claude

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/antigravity-proxy/gatewaycore/internal/translator/common"
)

const defaultMaxOutputTokens = 64000

// ToUpstream converts an Anthropic Messages request body into the upstream
// `request` object.
func ToUpstream(rawJSON []byte) ([]byte, error) {
	root := gjson.ParseBytes(rawJSON)
	out := `{"contents":[]}`

	if sys := root.Get("system"); sys.Exists() {
		if text := systemAsText(sys); text != "" {
			out, _ = sjson.Set(out, "systemInstruction.parts.0.text", text)
		}
	}

	messages := root.Get("messages")
	messages.ForEach(func(_, msg gjson.Result) bool {
		content, ok := convertMessage(msg)
		if ok {
			out, _ = sjson.SetRaw(out, "contents.-1", content)
		}
		return true
	})

	out = applyGenerationConfig(out, root)

	if tools := buildTools(root.Get("tools")); tools != "" {
		out, _ = sjson.SetRaw(out, "tools", tools)
	}

	out = string(common.AttachSafetySettings([]byte(out), "safetySettings"))
	return []byte(out), nil
}

func systemAsText(sys gjson.Result) string {
	if sys.Type == gjson.String {
		return sys.String()
	}
	if sys.IsArray() {
		var parts []string
		sys.ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "text" {
				if t := block.Get("text").String(); t != "" {
					parts = append(parts, t)
				}
			}
			return true
		})
		return strings.Join(parts, "\n\n")
	}
	return ""
}

func convertMessage(msg gjson.Result) (string, bool) {
	role := msg.Get("role").String()
	outRole := "user"
	if role == "assistant" {
		outRole = "model"
	}
	entry := `{"role":"","parts":[]}`
	entry, _ = sjson.Set(entry, "role", outRole)
	hasParts := false

	content := msg.Get("content")
	if content.Type == gjson.String {
		if content.String() != "" {
			entry, _ = sjson.SetRaw(entry, "parts.-1", textPart(content.String()))
			hasParts = true
		}
	} else if content.IsArray() {
		content.ForEach(func(_, block gjson.Result) bool {
			if part, ok := convertContentBlock(block); ok {
				entry, _ = sjson.SetRaw(entry, "parts.-1", part)
				hasParts = true
			}
			return true
		})
	}

	return entry, hasParts
}

func convertContentBlock(block gjson.Result) (string, bool) {
	switch block.Get("type").String() {
	case "text":
		text := block.Get("text").String()
		if text == "" {
			return "", false
		}
		return textPart(text), true

	case "thinking":
		text := block.Get("thinking").String()
		part := `{"thought":true}`
		if text != "" {
			part, _ = sjson.Set(part, "text", text)
		}
		if sig := block.Get("signature").String(); sig != "" {
			part, _ = sjson.Set(part, "thoughtSignature", sig)
		}
		return part, true

	case "tool_use":
		name := block.Get("name").String()
		id := block.Get("id").String()
		args := block.Get("input")
		argsRaw := "{}"
		if args.IsObject() {
			argsRaw = args.Raw
		}
		part := `{"functionCall":{"name":"","args":{}}}`
		if id != "" {
			part, _ = sjson.Set(part, "functionCall.id", id)
		}
		part, _ = sjson.Set(part, "functionCall.name", name)
		part, _ = sjson.SetRaw(part, "functionCall.args", argsRaw)
		return part, true

	case "tool_result":
		respContent := block.Get("content")
		var result string
		switch {
		case respContent.Type == gjson.String:
			result = respContent.String()
		case respContent.IsArray():
			arr := respContent.Array()
			if len(arr) == 1 {
				result = arr[0].Raw
			} else {
				result = respContent.Raw
			}
		case respContent.IsObject():
			result = respContent.Raw
		}
		part := `{"functionResponse":{"name":"tool","response":{"result":""}}}`
		part, _ = sjson.Set(part, "functionResponse.response.result", result)
		return part, true

	case "image":
		source := block.Get("source")
		if source.Get("type").String() != "base64" {
			return "", false
		}
		mime := source.Get("media_type").String()
		data := source.Get("data").String()
		if mime == "" || data == "" {
			return "", false
		}
		part := `{"inlineData":{"mimeType":"","data":""}}`
		part, _ = sjson.Set(part, "inlineData.mimeType", mime)
		part, _ = sjson.Set(part, "inlineData.data", data)
		return part, true

	default:
		return "", false
	}
}

func textPart(text string) string {
	p := `{"text":""}`
	p, _ = sjson.Set(p, "text", text)
	return p
}

func applyGenerationConfig(out string, root gjson.Result) string {
	maxTokens := int64(defaultMaxOutputTokens)
	if v := root.Get("max_tokens"); v.Exists() {
		maxTokens = v.Int()
	}
	out, _ = sjson.Set(out, "generationConfig.maxOutputTokens", maxTokens)

	if v := root.Get("temperature"); v.Exists() {
		out, _ = sjson.Set(out, "generationConfig.temperature", v.Float())
	}
	if v := root.Get("top_p"); v.Exists() {
		out, _ = sjson.Set(out, "generationConfig.topP", v.Float())
	}
	if v := root.Get("top_k"); v.Exists() {
		out, _ = sjson.Set(out, "generationConfig.topK", v.Int())
	}
	if stop := root.Get("stop_sequences"); stop.IsArray() {
		var stops []string
		stop.ForEach(func(_, v gjson.Result) bool { stops = append(stops, v.String()); return true })
		if len(stops) > 0 {
			out, _ = sjson.Set(out, "generationConfig.stopSequences", stops)
		}
	}

	// thinking.type=enabled maps to an explicit thinking budget; other values
	// (e.g. omitted, or a future "disabled") leave thinkingConfig unset.
	if t := root.Get("thinking"); t.Exists() && t.Get("type").String() == "enabled" {
		if b := t.Get("budget_tokens"); b.Exists() {
			out, _ = sjson.Set(out, "generationConfig.thinkingConfig.thinkingBudget", b.Int())
			out, _ = sjson.Set(out, "generationConfig.thinkingConfig.includeThoughts", true)
		}
	}
	return out
}

func buildTools(tools gjson.Result) string {
	if !tools.Exists() || !tools.IsArray() || len(tools.Array()) == 0 {
		return ""
	}
	decls := "[]"
	hasSearch := false
	tools.ForEach(func(_, tool gjson.Result) bool {
		if strings.HasPrefix(tool.Get("type").String(), "web_search") || tool.Get("name").String() == "web_search" {
			hasSearch = true
			return true
		}
		schema := tool.Get("input_schema")
		if !schema.Exists() {
			return true
		}
		decl := `{"name":"","description":""}`
		decl, _ = sjson.Set(decl, "name", tool.Get("name").String())
		decl, _ = sjson.Set(decl, "description", tool.Get("description").String())
		decl, _ = sjson.SetRaw(decl, "parameters", common.CleanSchema(schema.Raw))
		decls, _ = sjson.SetRaw(decls, "-1", decl)
		return true
	})

	out := "[]"
	if len(gjson.Parse(decls).Array()) > 0 {
		entry := `{"functionDeclarations":[]}`
		entry, _ = sjson.SetRaw(entry, "functionDeclarations", decls)
		out, _ = sjson.SetRaw(out, "-1", entry)
	}
	if hasSearch {
		out, _ = sjson.SetRaw(out, "-1", `{"googleSearch":{}}`)
	}
	if out == "[]" {
		return ""
	}
	return out
}
