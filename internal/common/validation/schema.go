// Package validation validates adapter payloads against servicer JSON schemas.
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Result is the outcome of a schema validation pass.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidatePayload checks a JSON payload against a JSON schema document.
func ValidatePayload(payload []byte, schema string) (*Result, error) {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(payload)

	res, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation failed to run: %w", err)
	}

	out := &Result{Valid: res.Valid()}
	for _, e := range res.Errors() {
		out.Errors = append(out.Errors, e.String())
	}
	return out, nil
}
