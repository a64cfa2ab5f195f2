package router

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// requestSchema is the boundary schema for execution requests. A request that
// fails here is rejected before any event is written.
const requestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["goal"],
  "properties": {
    "goal": {
      "type": "string",
      "minLength": 1
    },
    "plan": {
      "type": "string"
    },
    "mode": {
      "type": "string",
      "enum": ["dry_run", "apply"]
    },
    "adapter_id": {
      "type": "string"
    },
    "max_steps": {
      "type": "integer",
      "minimum": 1
    }
  },
  "additionalProperties": true
}`

var compiledRequestSchema *gojsonschema.Schema

func init() {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchema))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded request schema: %v", err))
	}
	compiledRequestSchema = schema
}

// validateRequest checks a raw execution request against the request schema.
func validateRequest(request map[string]any) error {
	const op = "router.validateRequest"

	result, err := compiledRequestSchema.Validate(gojsonschema.NewGoLoader(request))
	if err != nil {
		return gerrors.Wrap(err, gerrors.KindSchema, op, "failed to validate request")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return gerrors.Schema(op, fmt.Sprintf("invalid request: %s", strings.Join(msgs, "; ")))
}
