package provider

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

// GenerateSchema reflects T into a JSON schema map suitable for strict
// structured outputs: no references, additionalProperties false, and every
// property required, which is what the API's strict mode demands.
func GenerateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)

	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	enforceStrictMode(m)
	return m
}

func enforceStrictMode(schema map[string]interface{}) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]interface{}); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]interface{}); ok {
				enforceStrictMode(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		enforceStrictMode(items)
	}
}

// DecodeModelJSON unmarshals a structured-output reply, tolerating the code
// fences some models wrap JSON in despite strict mode.
func DecodeModelJSON(raw string, out interface{}) error {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return json.Unmarshal([]byte(strings.TrimSpace(s)), out)
}
