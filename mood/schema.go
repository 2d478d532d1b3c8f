package mood

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidRequest wraps request bodies rejected before any stage runs.
var ErrInvalidRequest = errors.New("invalid request")

// requestBody is the accepted wire form; pet is the legacy name of petVariant.
type requestBody struct {
	Text       string `json:"text" jsonschema:"required,minLength=1"`
	PetVariant string `json:"petVariant,omitempty" jsonschema:"maxLength=64"`
	Pet        string `json:"pet,omitempty" jsonschema:"maxLength=64"`
}

const requestSchemaURL = "request.json"

// RequestValidator checks raw analysis request bodies.
type RequestValidator struct {
	schema *jsonschema.Schema
}

func NewRequestValidator() (*RequestValidator, error) {
	raw, err := RequestSchema()
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(requestSchemaURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(requestSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &RequestValidator{schema: schema}, nil
}

// RequestSchema returns the JSON schema of the request body.
func RequestSchema() ([]byte, error) {
	reflector := invopop.Reflector{
		AllowAdditionalProperties:  true,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	b, err := reflector.Reflect(&requestBody{}).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal request schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	// the compiler is pinned to 2020-12 and the resource URL is local
	delete(m, "$id")
	delete(m, "$schema")
	return json.Marshal(m)
}

// Decode validates raw and returns the Request it describes.
func (v *RequestValidator) Decode(raw []byte) (Request, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := v.schema.Validate(payload); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	var body requestBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if strings.TrimSpace(body.Text) == "" {
		return Request{}, ErrEmptyInput
	}
	req := Request{Text: body.Text, PetVariant: body.PetVariant}
	if req.PetVariant == "" {
		req.PetVariant = body.Pet
	}
	req.PetVariant = req.Variant()
	return req, nil
}
