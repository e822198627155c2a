// Package images builds the fixed upstream request shape for image
// generation (no tools, no system instruction, a derived aspect ratio) and
// repackages the upstream's inlineData parts into the OpenAI images
// response shape. Grounded on the teacher's antigravity request builders
// for the shape of the envelope and the minimal field set an image request
// carries; the aspect-ratio derivation table has no direct teacher
// counterpart (the teacher only forwards whatever aspectRatio the caller
// already supplied) and is implemented fresh from the ratio rules in the
// size-suffix table.
package images

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// suffixRatios is checked before falling back to WxH-derived ratios.
var suffixRatios = []struct {
	suffix string
	ratio  string
}{
	{"-16x9", "16:9"},
	{"-9x16", "9:16"},
	{"-4x3", "4:3"},
	{"-3x4", "3:4"},
	{"-1x1", "1:1"},
}

// AspectRatio derives an upstream imageConfig.aspectRatio value from a
// model name or a request `size` string, per the suffix table first and
// then a WxH-ratio fallback. Always returns a valid ratio string, "1:1"
// when nothing matches.
func AspectRatio(modelOrSize string) string {
	for _, sr := range suffixRatios {
		if strings.HasSuffix(modelOrSize, sr.suffix) {
			return sr.ratio
		}
	}

	w, h, ok := parseWxH(modelOrSize)
	if !ok || w <= 0 || h <= 0 {
		return "1:1"
	}
	switch {
	case w == h:
		return "1:1"
	case w > h:
		if float64(w)/float64(h) > 1.5 {
			return "16:9"
		}
		return "4:3"
	default:
		if float64(h)/float64(w) > 1.5 {
			return "9:16"
		}
		return "3:4"
	}
}

func parseWxH(s string) (w, h int, ok bool) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		parts = strings.SplitN(s, "X", 2)
	}
	if len(parts) != 2 {
		return 0, 0, false
	}
	wv, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	hv, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return wv, hv, true
}

// ToUpstream builds the upstream request object for an OpenAI-shaped image
// generation request: a single user-role text part carrying the prompt,
// and generationConfig.imageConfig.aspectRatio — no tools, no
// systemInstruction.
func ToUpstream(rawJSON []byte) []byte {
	root := gjson.ParseBytes(rawJSON)
	prompt := root.Get("prompt").String()

	out := `{"contents":[{"role":"user","parts":[{"text":""}]}]}`
	out, _ = sjson.Set(out, "contents.0.parts.0.text", prompt)

	ratioSource := root.Get("size").String()
	if ratioSource == "" {
		ratioSource = root.Get("model").String()
	}
	out, _ = sjson.Set(out, "generationConfig.imageConfig.aspectRatio", AspectRatio(ratioSource))

	return []byte(out)
}

// FromUpstream repackages the inlineData parts of an upstream image
// response into the OpenAI images response shape, honoring
// responseFormat ("url" for a data: URI, "b64_json" by default).
func FromUpstream(rawJSON []byte, responseFormat string) []byte {
	root := gjson.ParseBytes(rawJSON)
	out := `{"created":0,"data":[]}`

	parts := root.Get("candidates.0.content.parts")
	parts.ForEach(func(_, part gjson.Result) bool {
		inline := part.Get("inlineData")
		if !inline.Exists() {
			return true
		}
		data := inline.Get("data").String()
		mime := inline.Get("mimeType").String()
		if mime == "" {
			mime = "image/png"
		}

		entry := "{}"
		if responseFormat == "url" {
			entry, _ = sjson.Set(entry, "url", "data:"+mime+";base64,"+data)
		} else {
			entry, _ = sjson.Set(entry, "b64_json", data)
		}
		out, _ = sjson.SetRaw(out, "data.-1", entry)
		return true
	})

	return []byte(out)
}
