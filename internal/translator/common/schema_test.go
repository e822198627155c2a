package common

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestCleanSchemaIdempotent(t *testing.T) {
	input := `{"type":"object","description":"x","x-extra":"drop me","properties":{"name":{"type":"string","pattern":"^a"},"count":{"type":"integer"}},"required":["name"]}`

	once := CleanSchema(input)
	twice := CleanSchema(once)
	if once != twice {
		t.Fatalf("clean(clean(s)) != clean(s):\n once=%s\n twice=%s", once, twice)
	}
}

func TestCleanSchemaUppercasesTypesAndStripsUnknownKeys(t *testing.T) {
	input := `{"type":"object","x-extra":"drop","properties":{"name":{"type":"string","pattern":"nope"}}}`
	out := CleanSchema(input)

	if got := gjson.Get(out, "type").String(); got != "OBJECT" {
		t.Fatalf("want uppercased OBJECT type, got %s", got)
	}
	if got := gjson.Get(out, "properties.name.type").String(); got != "STRING" {
		t.Fatalf("want uppercased STRING type, got %s", got)
	}
	if gjson.Get(out, "x-extra").Exists() {
		t.Fatalf("want x-extra stripped, got %s", out)
	}
	if gjson.Get(out, "properties.name.pattern").Exists() {
		t.Fatalf("want pattern stripped (not in allow-list), got %s", out)
	}
}
