// Package oracle is the single choke point for invocations of the external
// multimodal model. Callers pass ordered text/image parts plus a declared
// output schema; the oracle must answer with JSON matching that schema.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meowtion/sensor/internal/apperr"
	"github.com/meowtion/sensor/internal/imaging"
)

// Part is one element of an oracle request: instructional text or an
// encoded image. Exactly one field is set.
type Part struct {
	Text  string
	Image *imaging.EncodedImage
}

// TextPart builds a text part.
func TextPart(s string) Part { return Part{Text: s} }

// ImagePart builds an image part.
func ImagePart(img imaging.EncodedImage) Part { return Part{Image: &img} }

// Type enumerates the JSON-shaped types a Schema can declare.
type Type string

const (
	TypeObject  Type = "object"
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
)

// Schema is the output contract sent alongside a request. It names the
// required fields and their types; the decoded response is validated
// against it defensively, since schema drift and truncated output are
// real failure modes even when the oracle claims structured mode.
type Schema struct {
	Type        Type
	Description string
	Properties  map[string]*Schema
	Items       *Schema
	Required    []string
}

// Client issues one schema-constrained evaluation per call and returns the
// raw JSON text of the response. Implementations perform no retries.
type Client interface {
	Generate(ctx context.Context, parts []Part, schema *Schema) ([]byte, error)
}

// Decode parses raw oracle output into out and validates it against the
// schema's required top-level fields. Any violation yields an
// *apperr.OracleError.
func Decode(raw []byte, schema *Schema, out any) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return &apperr.OracleError{Reason: "response is not a JSON object", Err: err}
	}
	for _, field := range schema.Required {
		v, ok := probe[field]
		if !ok || string(v) == "null" {
			return &apperr.OracleError{Reason: fmt.Sprintf("missing required field %q", field)}
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperr.OracleError{Reason: "response violates declared schema", Err: err}
	}
	return nil
}
