// Package gemini handles the native Gemini generateContent wire format,
// which already matches the upstream content/parts shape almost exactly.
// Grounded on the teacher's internal/translator/antigravity/gemini package,
// reduced to the wrap-and-default-safety-settings step this system needs
// (the teacher's thoughtSignature skip-sentinel injection for unsigned
// functionCall parts is a workaround for Gemini CLI's stricter signature
// validator; Antigravity's own API does not require it for the native
// Gemini surface, so it is omitted here — see DESIGN.md).
package gemini

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/antigravity-proxy/gatewaycore/internal/translator/common"
)

// ToUpstream repackages a native Gemini generateContent request body into
// the upstream `request` object. The request body is already
// upstream-shaped (contents/systemInstruction/generationConfig/tools); this
// only needs to strip the top-level `model` field (carried separately by
// the caller) and attach default safety settings when the client didn't
// supply its own.
func ToUpstream(rawJSON []byte) ([]byte, error) {
	out, err := sjson.DeleteBytes(rawJSON, "model")
	if err != nil {
		out = rawJSON
	}
	if !gjson.GetBytes(out, "safetySettings").Exists() {
		out = common.AttachSafetySettings(out, "safetySettings")
	}
	return out, nil
}
