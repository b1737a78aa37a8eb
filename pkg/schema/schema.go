// Package schema derives JSON Schemas from Go types and decodes model output
// against them.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// For returns the JSON Schema of T, inlined without $ref or $schema so it can
// be sent as tool parameters or as a structured-output format.
func For[T any]() json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var zero T
	s := r.Reflect(&zero)
	s.Version = ""
	s.ID = ""

	raw, err := json.Marshal(s)
	if err != nil {
		// Reflected schemas only contain marshalable values.
		panic(fmt.Sprintf("schema: marshal %T: %v", zero, err))
	}
	return raw
}

// Decode parses model output into T. Output that is not valid JSON, such as
// a fenced block or a truncated object, is repaired once before giving up.
func Decode[T any](text string) (T, error) {
	var out T
	trimmed := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return out, nil
	}

	repaired, err := jsonrepair.JSONRepair(stripFence(trimmed))
	if err != nil {
		return out, fmt.Errorf("output is not JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return out, fmt.Errorf("output does not match schema: %w", err)
	}
	return out, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
