package images

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestAspectRatioSuffixTable(t *testing.T) {
	cases := map[string]string{
		"model-16x9": "16:9",
		"model-9x16": "9:16",
		"model-4x3":  "4:3",
		"model-3x4":  "3:4",
		"model-1x1":  "1:1",
	}
	for in, want := range cases {
		if got := AspectRatio(in); got != want {
			t.Errorf("AspectRatio(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAspectRatioWxHFallback(t *testing.T) {
	cases := map[string]string{
		"1920x1080": "16:9", // wide, ratio > 1.5
		"1080x1920": "9:16", // tall, ratio > 1.5
		"1024x1024": "1:1",
		"1200x900":  "4:3", // wide, ratio <= 1.5
		"900x1200":  "3:4", // tall, ratio <= 1.5
		"garbage":   "1:1", // unparsable default
	}
	for in, want := range cases {
		if got := AspectRatio(in); got != want {
			t.Errorf("AspectRatio(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToUpstreamBuildsPromptAndAspectRatioNoTools(t *testing.T) {
	in := []byte(`{"prompt":"cat","size":"1920x1080"}`)
	out := ToUpstream(in)
	root := gjson.ParseBytes(out)

	if got := root.Get("contents.0.parts.0.text").String(); got != "cat" {
		t.Fatalf("want prompt text cat, got %q", got)
	}
	if got := root.Get("generationConfig.imageConfig.aspectRatio").String(); got != "16:9" {
		t.Fatalf("want aspect ratio 16:9, got %q", got)
	}
	if root.Get("tools").Exists() {
		t.Fatalf("want no tools in image request")
	}
	if root.Get("systemInstruction").Exists() {
		t.Fatalf("want no systemInstruction in image request")
	}
}

func TestFromUpstreamDefaultsToB64Json(t *testing.T) {
	upstream := []byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"ZmFrZQ=="}}]}}]}`)
	out := FromUpstream(upstream, "")
	if got := gjson.GetBytes(out, "data.0.b64_json").String(); got != "ZmFrZQ==" {
		t.Fatalf("want b64_json data, got %q", got)
	}
}

func TestFromUpstreamURLFormatBuildsDataURI(t *testing.T) {
	upstream := []byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"ZmFrZQ=="}}]}}]}`)
	out := FromUpstream(upstream, "url")
	url := gjson.GetBytes(out, "data.0.url").String()
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("want data: URL, got %q", url)
	}
}
