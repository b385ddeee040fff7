package provider

import (
	"testing"
)

type sampleDoc struct {
	Narrative string   `json:"narrative"`
	Facts     []string `json:"facts"`
}

func TestGenerateSchema_StrictMode(t *testing.T) {
	t.Parallel()

	schema := GenerateSchema[sampleDoc]()

	if got := schema["additionalProperties"]; got != false {
		t.Fatalf("additionalProperties=%v, want false", got)
	}
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("properties missing: %v", schema)
	}
	for _, name := range []string{"narrative", "facts"} {
		if _, ok := props[name]; !ok {
			t.Fatalf("property %q missing", name)
		}
	}
	required, ok := schema["required"].([]string)
	if !ok {
		t.Fatalf("required missing or wrong type: %T", schema["required"])
	}
	if len(required) != 2 {
		t.Fatalf("required=%v, want both properties", required)
	}
}

func TestDecodeModelJSON(t *testing.T) {
	t.Parallel()

	cases := []string{
		`{"narrative":"n","facts":["f1"]}`,
		" {\"narrative\":\"n\",\"facts\":[\"f1\"]} ",
		"```json\n{\"narrative\":\"n\",\"facts\":[\"f1\"]}\n```",
		"```\n{\"narrative\":\"n\",\"facts\":[\"f1\"]}\n```",
	}
	for i, raw := range cases {
		var doc sampleDoc
		if err := DecodeModelJSON(raw, &doc); err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if doc.Narrative != "n" || len(doc.Facts) != 1 {
			t.Fatalf("case %d: decoded %+v", i, doc)
		}
	}

	var doc sampleDoc
	if err := DecodeModelJSON("not json", &doc); err == nil {
		t.Fatal("garbage accepted")
	}
}
