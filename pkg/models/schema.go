package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// workflowConfigSchema validates the workflow config payload accepted from
// the API before a workflow is saved.
const workflowConfigSchema = `{
	"type": "object",
	"properties": {
		"retry_count":      {"type": "integer", "minimum": 0, "maximum": 10},
		"timeout_seconds":  {"type": "integer", "minimum": 0, "maximum": 86400},
		"priority":         {"type": "string", "enum": ["", "low", "normal", "high"]},
		"notify_on_error":  {"type": "boolean"},
		"require_approval": {"type": "boolean"},
		"approval_window_seconds": {"type": "integer", "minimum": 0, "maximum": 2592000}
	},
	"additionalProperties": false
}`

// ValidateWorkflowConfig checks a raw config document against the workflow
// config schema and returns a single error describing every violation.
func ValidateWorkflowConfig(config map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(workflowConfigSchema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("failed to validate workflow config: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return errors.New("invalid workflow config: " + strings.Join(details, "; "))
}
