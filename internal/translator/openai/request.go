// Package openai translates between the OpenAI chat-completions wire
// format and the upstream Gemini-shaped request/response shape. Grounded on
// the teacher's internal/translator/openai/gemini and
// internal/translator/gemini/openai/chat-completions packages, rewritten as
// a single direct wire<->upstream hop (the teacher chains through its own
// gemini-shaped intermediate across several packages; this system only
// needs one hop each way).
package openai

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/antigravity-proxy/gatewaycore/internal/translator/common"
)

const defaultMaxOutputTokens = 64000

// ToUpstream converts an OpenAI chat-completions request body into the
// upstream `request` object (the inner payload of the southbound wrapper;
// callers add project/model/requestId around this).
func ToUpstream(rawJSON []byte) ([]byte, error) {
	root := gjson.ParseBytes(rawJSON)
	out := `{"contents":[]}`

	var systemParts []string
	messages := root.Get("messages")
	messages.ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() == "system" {
			if text := contentAsText(msg.Get("content")); text != "" {
				systemParts = append(systemParts, text)
			}
		}
		return true
	})
	if len(systemParts) > 0 {
		sysText := strings.Join(systemParts, "\n\n")
		out, _ = sjson.Set(out, "systemInstruction.parts.0.text", sysText)
	}

	messages.ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		if role == "system" {
			return true
		}
		content, ok := convertMessage(role, msg)
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

func convertMessage(role string, msg gjson.Result) (string, bool) {
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

	if toolCalls := msg.Get("tool_calls"); toolCalls.Exists() && toolCalls.IsArray() {
		toolCalls.ForEach(func(_, tc gjson.Result) bool {
			name := tc.Get("function.name").String()
			argsRaw := tc.Get("function.arguments").String()
			args := "{}"
			if argsRaw != "" {
				var probe any
				if json.Unmarshal([]byte(argsRaw), &probe) == nil {
					args = argsRaw
				}
			}
			part := `{"functionCall":{"name":"","args":{}}}`
			part, _ = sjson.Set(part, "functionCall.name", name)
			part, _ = sjson.SetRaw(part, "functionCall.args", args)
			entry, _ = sjson.SetRaw(entry, "parts.-1", part)
			hasParts = true
			return true
		})
	}

	if role == "tool" || role == "function" {
		name := msg.Get("name").String()
		if name == "" {
			name = msg.Get("tool_call_id").String()
		}
		id := msg.Get("tool_call_id").String()
		if id == "" {
			id = "unknown"
		}
		result := contentAsText(content)
		part := `{"functionResponse":{"name":"","id":"","response":{"result":""}}}`
		part, _ = sjson.Set(part, "functionResponse.name", name)
		part, _ = sjson.Set(part, "functionResponse.id", id)
		part, _ = sjson.Set(part, "functionResponse.response.result", result)
		entry, _ = sjson.SetRaw(entry, "parts.-1", part)
		hasParts = true
	}

	return entry, hasParts
}

func convertContentBlock(block gjson.Result) (string, bool) {
	switch block.Get("type").String() {
	case "text":
		return textPart(block.Get("text").String()), true
	case "image_url":
		url := block.Get("image_url.url").String()
		if strings.HasPrefix(url, "data:") {
			mime, data, ok := parseDataURI(url)
			if !ok {
				return "", false
			}
			part := `{"inlineData":{"mimeType":"","data":""}}`
			part, _ = sjson.Set(part, "inlineData.mimeType", mime)
			part, _ = sjson.Set(part, "inlineData.data", data)
			return part, true
		}
		if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
			part := `{"fileData":{"fileUri":"","mimeType":"image/jpeg"}}`
			part, _ = sjson.Set(part, "fileData.fileUri", url)
			return part, true
		}
		return "", false
	default:
		return "", false
	}
}

func textPart(text string) string {
	p := `{"text":""}`
	p, _ = sjson.Set(p, "text", text)
	return p
}

// parseDataURI splits "data:<mime>;base64,<data>"; malformed URIs are
// reported via ok=false so the caller drops them silently.
func parseDataURI(uri string) (mime, data string, ok bool) {
	rest := strings.TrimPrefix(uri, "data:")
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", "", false
	}
	meta, payload := rest[:comma], rest[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return "", "", false
	}
	mime = strings.TrimSuffix(meta, ";base64")
	if mime == "" {
		mime = "application/octet-stream"
	}
	return mime, payload, true
}

func contentAsText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if content.IsArray() {
		var b strings.Builder
		content.ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "text" {
				b.WriteString(block.Get("text").String())
			}
			return true
		})
		return b.String()
	}
	return ""
}

func applyGenerationConfig(out string, root gjson.Result) string {
	maxTokens := int64(defaultMaxOutputTokens)
	if v := root.Get("max_tokens"); v.Exists() {
		maxTokens = v.Int()
	}
	temperature := 1.0
	if v := root.Get("temperature"); v.Exists() {
		temperature = v.Float()
	}
	topP := 1.0
	if v := root.Get("top_p"); v.Exists() {
		topP = v.Float()
	}

	out, _ = sjson.Set(out, "generationConfig.maxOutputTokens", maxTokens)
	out, _ = sjson.Set(out, "generationConfig.temperature", temperature)
	out, _ = sjson.Set(out, "generationConfig.topP", topP)

	if stop := root.Get("stop"); stop.Exists() {
		if stop.IsArray() {
			var stops []string
			stop.ForEach(func(_, v gjson.Result) bool { stops = append(stops, v.String()); return true })
			out, _ = sjson.Set(out, "generationConfig.stopSequences", stops)
		} else if stop.Type == gjson.String {
			out, _ = sjson.Set(out, "generationConfig.stopSequences", []string{stop.String()})
		}
	}

	if root.Get("response_format.type").String() == "json_object" {
		out, _ = sjson.Set(out, "generationConfig.responseMimeType", "application/json")
	}
	return out
}

func buildTools(tools gjson.Result) string {
	if !tools.Exists() || !tools.IsArray() || len(tools.Array()) == 0 {
		return ""
	}
	decls := "[]"
	tools.ForEach(func(_, tool gjson.Result) bool {
		fn := tool.Get("function")
		if !fn.Exists() {
			return true
		}
		decl := `{"name":"","description":""}`
		decl, _ = sjson.Set(decl, "name", fn.Get("name").String())
		decl, _ = sjson.Set(decl, "description", fn.Get("description").String())
		if params := fn.Get("parameters"); params.Exists() {
			decl, _ = sjson.SetRaw(decl, "parameters", common.CleanSchema(params.Raw))
		}
		decls, _ = sjson.SetRaw(decls, "-1", decl)
		return true
	})
	out := `[{"functionDeclarations":[]}]`
	out, _ = sjson.SetRaw(out, "0.functionDeclarations", decls)
	return out
}
