// Package tokencount estimates prompt token counts with tiktoken-go when
// an upstream response omits usageMetadata entirely (observed on some
// streaming error paths). Grounded on the teacher's
// internal/runtime/executor/token_helpers.go, reduced to the OpenAI
// chat-completions message/tool walk that gateway's callers actually need.
package tokencount

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tiktoken-go/tokenizer"
)

// CodecForModel returns the tiktoken codec for an OpenAI-style model id,
// falling back to o200k_base for anything unrecognized.
func CodecForModel(model string) (tokenizer.Codec, error) {
	sanitized := strings.ToLower(strings.TrimSpace(model))
	switch {
	case sanitized == "":
		return tokenizer.Get(tokenizer.Cl100kBase)
	case strings.HasPrefix(sanitized, "gpt-4.1"):
		return tokenizer.ForModel(tokenizer.GPT41)
	case strings.HasPrefix(sanitized, "gpt-4o"):
		return tokenizer.ForModel(tokenizer.GPT4o)
	case strings.HasPrefix(sanitized, "gpt-4"):
		return tokenizer.ForModel(tokenizer.GPT4)
	case strings.HasPrefix(sanitized, "gpt-3.5"), strings.HasPrefix(sanitized, "gpt-3"):
		return tokenizer.ForModel(tokenizer.GPT35Turbo)
	case strings.HasPrefix(sanitized, "o1"):
		return tokenizer.ForModel(tokenizer.O1)
	case strings.HasPrefix(sanitized, "o3"):
		return tokenizer.ForModel(tokenizer.O3)
	default:
		return tokenizer.Get(tokenizer.O200kBase)
	}
}

// EstimateChatTokens walks an OpenAI chat-completions request body and
// counts tokens across message content, tool declarations, and the
// response_format/tool_choice fields, the same set of fields an upstream
// usage report would have been billed against.
func EstimateChatTokens(model string, rawJSON []byte) (int64, error) {
	codec, err := CodecForModel(model)
	if err != nil {
		return 0, err
	}

	root := gjson.ParseBytes(rawJSON)
	var segments []string

	root.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		add(&segments, msg.Get("role").String())
		add(&segments, msg.Get("name").String())
		collectContent(msg.Get("content"), &segments)
		msg.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
			add(&segments, tc.Get("function.name").String())
			add(&segments, tc.Get("function.arguments").String())
			return true
		})
		return true
	})

	root.Get("tools").ForEach(func(_, tool gjson.Result) bool {
		fn := tool.Get("function")
		add(&segments, fn.Get("name").String())
		add(&segments, fn.Get("description").String())
		if params := fn.Get("parameters"); params.Exists() {
			add(&segments, params.Raw)
		}
		return true
	})

	joined := strings.TrimSpace(strings.Join(segments, "\n"))
	if joined == "" {
		return 0, nil
	}
	count, err := codec.Count(joined)
	if err != nil {
		return 0, err
	}
	return int64(count), nil
}

func collectContent(content gjson.Result, segments *[]string) {
	if !content.Exists() {
		return
	}
	if content.Type == gjson.String {
		add(segments, content.String())
		return
	}
	if content.IsArray() {
		content.ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				add(segments, part.Get("text").String())
			}
			return true
		})
	}
}

func add(segments *[]string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*segments = append(*segments, trimmed)
	}
}
