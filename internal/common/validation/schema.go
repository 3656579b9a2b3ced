// Package validation checks structured LLM responses against a JSON schema
// before any of their content enters the pipeline.
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// insightResponseSchema is the shape the synthesis engine requires from the
// LLM: categorized insights with evidence counts, nothing else.
const insightResponseSchema = `{
	"type": "object",
	"required": ["insights"],
	"properties": {
		"insights": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["category", "priority", "summary", "evidence_count"],
				"properties": {
					"category": {
						"type": "string",
						"enum": ["market", "competitive", "audience", "risk"]
					},
					"priority": {
						"type": "string",
						"enum": ["high", "medium", "low"]
					},
					"summary": {"type": "string", "minLength": 30},
					"evidence_count": {"type": "integer", "minimum": 0}
				},
				"additionalProperties": false
			}
		}
	}
}`

// ValidationError describes one schema violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result reports the outcome of a schema validation.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidateInsightResponse validates a raw LLM response document against the
// insight schema.
func ValidateInsightResponse(document []byte) (*Result, error) {
	schemaLoader := gojsonschema.NewStringLoader(insightResponseSchema)
	docLoader := gojsonschema.NewBytesLoader(document)

	res, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	out := &Result{Valid: res.Valid()}
	for _, e := range res.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
		})
	}
	return out, nil
}
