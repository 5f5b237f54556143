// Package schema compiles JSON Schemas once and checks documents against them.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a compiled JSON Schema. Safe for concurrent use.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// ViolationError lists the constraints a document broke.
type ViolationError struct {
	Schema     string
	Violations []string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s: document failed validation: %s", e.Schema, strings.Join(e.Violations, "; "))
}

// Compile parses src as a JSON Schema.
func Compile(name, src string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: s}, nil
}

// MustCompile is Compile for package-level schemas.
func MustCompile(name, src string) *Schema {
	s, err := Compile(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a raw JSON document. Malformed JSON is reported as a violation.
func (s *Schema) Validate(doc []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return &ViolationError{Schema: s.name, Violations: []string{err.Error()}}
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return &ViolationError{Schema: s.name, Violations: errs}
	}
	return nil
}
