// SPDX-License-Identifier: Apache-2.0

// Package schema validates inbound telemetry documents against embedded
// JSON Schema documents and decodes them into typed variants. Wire names are
// camelCase; Go field names are the internal names.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/adiadia/syrphid-receiver/internal/domain"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Shape names. They double as the variant name reported in validation
// errors and metrics.
const (
	ShapeEnvelope        = "envelope"
	ShapeNetworkRequest  = "network_request"
	ShapeNetworkResponse = "network_response"
	ShapeUserInteraction = "user_interaction"
	ShapeMouse           = "mouse"
	ShapeKey             = "key"
	ShapeTouch           = "touch"
)

var shapes = []string{
	ShapeEnvelope,
	ShapeNetworkRequest,
	ShapeNetworkResponse,
	ShapeUserInteraction,
	ShapeMouse,
	ShapeKey,
	ShapeTouch,
}

// Validator holds the compiled schemas. It is safe for concurrent use and
// never mutates the documents it validates.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// New compiles every embedded schema once.
func New() (*Validator, error) {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema, len(shapes))}
	for _, name := range shapes {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name] = compiled
	}
	return v, nil
}

// Envelope validates the root fields shared by every message.
func (v *Validator) Envelope(doc map[string]any) (Envelope, error) {
	var env Envelope
	if err := v.check(ShapeEnvelope, doc, &env, rootError); err != nil {
		return Envelope{}, err
	}
	if err := env.normalize(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (v *Validator) NetworkRequest(doc map[string]any) (NetworkRequest, error) {
	var out NetworkRequest
	err := v.check(ShapeNetworkRequest, doc, &out, variantError(ShapeNetworkRequest))
	return out, err
}

func (v *Validator) NetworkResponse(doc map[string]any) (NetworkResponse, error) {
	var out NetworkResponse
	err := v.check(ShapeNetworkResponse, doc, &out, variantError(ShapeNetworkResponse))
	return out, err
}

func (v *Validator) UserInteraction(doc map[string]any) (UserInteraction, error) {
	var out UserInteraction
	err := v.check(ShapeUserInteraction, doc, &out, variantError(ShapeUserInteraction))
	return out, err
}

// Mouse validates the additionalData object of a mouse interaction.
func (v *Validator) Mouse(data json.RawMessage) (MouseEvent, error) {
	var out MouseEvent
	err := v.checkRaw(ShapeMouse, data, &out, variantError(ShapeMouse))
	return out, err
}

// Key validates the additionalData object of a keyboard interaction.
func (v *Validator) Key(data json.RawMessage) (KeyEvent, error) {
	var out KeyEvent
	err := v.checkRaw(ShapeKey, data, &out, variantError(ShapeKey))
	return out, err
}

// Touch validates the additionalData object of a touch interaction.
func (v *Validator) Touch(data json.RawMessage) (TouchEvent, error) {
	var out TouchEvent
	err := v.checkRaw(ShapeTouch, data, &out, variantError(ShapeTouch))
	return out, err
}

type errorFactory func(problems ...string) *domain.ValidationError

func rootError(problems ...string) *domain.ValidationError {
	return domain.NewRootValidationError(problems...)
}

func variantError(variant string) errorFactory {
	return func(problems ...string) *domain.ValidationError {
		return domain.NewVariantValidationError(variant, problems...)
	}
}

func (v *Validator) check(shape string, doc map[string]any, out any, fail errorFactory) error {
	if doc == nil {
		return fail("document is not an object")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fail(err.Error())
	}
	return v.checkRaw(shape, raw, out, fail)
}

func (v *Validator) checkRaw(shape string, raw json.RawMessage, out any, fail errorFactory) error {
	if len(raw) == 0 {
		return fail("document is empty")
	}
	result, err := v.schemas[shape].Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fail(err.Error())
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		sort.Strings(problems)
		return fail(problems...)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fail(err.Error())
	}
	return nil
}
