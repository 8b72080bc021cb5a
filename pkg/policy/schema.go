package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema wraps a compiled JSON Schema (Draft 2020-12) describing a
// policy type's valid init kwargs.
type Schema struct {
	compiled *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document (Draft 2020-12) for a
// policy type named id.
func CompileSchema(id, schemaJSON string) (*Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://uclse.local/policy/%s.schema.json", id)
	if err := c.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("policy schema load failed: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("policy schema compile failed: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// MustCompileSchema panics on error; used only for the fixed built-in
// schemas registered at init time, never for user-supplied schemas.
func MustCompileSchema(id, schemaJSON string) *Schema {
	s, err := CompileSchema(id, schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks kwargs against the schema. A nil Schema means the
// policy type imposes no shape constraint on its init kwargs at all
// (e.g. ExactMatchInputPolicy, whose "schema" is simply "whatever
// shape the submitter tested against"). A nil kwargs map is validated
// as an empty object.
func (s *Schema) Validate(kwargs map[string]interface{}) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	// jsonschema validates against generic interface{} produced by
	// encoding/json, not map[string]interface{} with Go-native nested
	// types directly — round-trip through JSON to normalize.
	b, err := json.Marshal(kwargs)
	if err != nil {
		return fmt.Errorf("marshal kwargs: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(b, &generic); err != nil {
		return fmt.Errorf("unmarshal kwargs: %w", err)
	}
	return s.compiled.Validate(generic)
}
