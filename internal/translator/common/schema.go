// Package common holds the protocol-agnostic pieces of the translator: the
// JSON-schema allow-list cleaner and the fixed safety settings every
// upstream request carries, both grounded on the teacher's
// internal/translator/gemini/common and internal/util/gemini_schema.go, but
// reduced to the allow-list-and-uppercase rule this system actually needs
// (the teacher's multi-phase const/allOf/anyOf flattening pipeline is out
// of scope — see DESIGN.md).
package common

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// schemaAllowList is the set of JSON-schema keys preserved when cleaning a
// function declaration's parameters for the upstream tool-call format.
var schemaAllowList = map[string]bool{
	"type": true, "description": true, "properties": true, "required": true,
	"items": true, "enum": true, "format": true, "nullable": true,
}

// CleanSchema recursively strips keys not in the allow-list from a
// JSON-schema document, uppercasing every `type` value along the way (the
// upstream's JSON-schema dialect expects `STRING`, `OBJECT`, etc). It is
// idempotent: CleanSchema(CleanSchema(s)) == CleanSchema(s).
func CleanSchema(schemaJSON string) string {
	if !gjson.Valid(schemaJSON) {
		return schemaJSON
	}
	return cleanValue(schemaJSON)
}

func cleanValue(raw string) string {
	result := gjson.Parse(raw)
	if !result.IsObject() {
		return raw
	}

	out := "{}"
	result.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if !schemaAllowList[k] {
			return true
		}
		switch k {
		case "type":
			out, _ = sjson.Set(out, k, strings.ToUpper(value.String()))
		case "properties":
			out = setCleanedObjectOfObjects(out, k, value)
		case "items":
			out, _ = sjson.SetRaw(out, k, cleanValue(value.Raw))
		case "required", "enum":
			out, _ = sjson.SetRaw(out, k, value.Raw)
		default:
			out, _ = sjson.SetRaw(out, k, value.Raw)
		}
		return true
	})
	return out
}

// setCleanedObjectOfObjects cleans every value of an object-valued field
// (used for `properties`, whose values are themselves schemas).
func setCleanedObjectOfObjects(out, key string, obj gjson.Result) string {
	cleaned := "{}"
	obj.ForEach(func(propName, propSchema gjson.Result) bool {
		cleaned, _ = sjson.SetRaw(cleaned, escapeKey(propName.String()), cleanValue(propSchema.Raw))
		return true
	})
	out, _ = sjson.SetRaw(out, key, cleaned)
	return out
}

func escapeKey(k string) string {
	return strings.NewReplacer(".", "\\.", "*", "\\*").Replace(k)
}

// DefaultSafetySettings is the fixed set of five HARM_CATEGORY_* entries
// every upstream request carries, all OFF per the wire contract (note: the
// teacher's own safety.go sets the fifth category, CIVIC_INTEGRITY, to
// BLOCK_NONE rather than OFF — this implementation follows the explicit
// all-OFF contract instead, see DESIGN.md).
func DefaultSafetySettings() []map[string]string {
	return []map[string]string{
		{"category": "HARM_CATEGORY_HARASSMENT", "threshold": "OFF"},
		{"category": "HARM_CATEGORY_HATE_SPEECH", "threshold": "OFF"},
		{"category": "HARM_CATEGORY_SEXUALLY_EXPLICIT", "threshold": "OFF"},
		{"category": "HARM_CATEGORY_DANGEROUS_CONTENT", "threshold": "OFF"},
		{"category": "HARM_CATEGORY_CIVIC_INTEGRITY", "threshold": "OFF"},
	}
}

// AttachSafetySettings writes DefaultSafetySettings at path within rawJSON.
func AttachSafetySettings(rawJSON []byte, path string) []byte {
	out, err := sjson.SetBytes(rawJSON, path, DefaultSafetySettings())
	if err != nil {
		return rawJSON
	}
	return out
}
