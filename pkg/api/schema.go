package api

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// conversationRequestSchema is the JSON Schema for POST /conversation bodies.
// Message contents stay open: the sampling loop owns their shape.
const conversationRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["messages", "api_key"],
  "properties": {
    "messages": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["role", "content"],
        "properties": {
          "role": {
            "type": "string",
            "minLength": 1
          }
        }
      }
    },
    "system_prompt_suffix": {
      "type": "string"
    },
    "provider": {
      "type": "string",
      "enum": ["anthropic", "bedrock", "vertex"]
    },
    "model": {
      "type": "string"
    },
    "api_key": {
      "type": "string",
      "minLength": 1
    },
    "only_n_most_recent_images": {
      "type": "integer",
      "minimum": 0
    },
    "max_tokens": {
      "type": "integer",
      "minimum": 1
    }
  }
}`

// requestValidator validates request bodies against a JSON Schema before they
// are decoded.
type requestValidator struct {
	schemaLoader gojsonschema.JSONLoader
}

func newRequestValidator() *requestValidator {
	return &requestValidator{
		schemaLoader: gojsonschema.NewStringLoader(conversationRequestSchema),
	}
}

// validate returns a single error collecting every schema violation.
func (v *requestValidator) validate(body []byte) error {
	documentLoader := gojsonschema.NewBytesLoader(body)
	result, err := gojsonschema.Validate(v.schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for i, verr := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += verr.String()
		}
		return fmt.Errorf("request validation failed: %s", errMsg)
	}

	return nil
}
