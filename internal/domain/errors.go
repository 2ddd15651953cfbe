// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"strings"
)

var ErrFraming = errors.New("framing error")
var ErrDecode = errors.New("invalid json message")
var ErrRootValidation = errors.New("root validation failed")
var ErrVariantValidation = errors.New("variant validation failed")
var ErrPersistence = errors.New("persistence failed")

type ValidationStage string

const (
	StageRoot    ValidationStage = "root"
	StageVariant ValidationStage = "variant"
)

// ValidationError lists every schema problem found in one document.
// Variant names the payload shape that failed (empty for the root envelope).
type ValidationError struct {
	Stage    ValidationStage
	Variant  string
	Problems []string
}

func (e *ValidationError) Error() string {
	subject := "envelope"
	if e.Variant != "" {
		subject = e.Variant
	}
	if len(e.Problems) == 0 {
		return subject + ": invalid"
	}
	return subject + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	if e.Stage == StageRoot {
		return ErrRootValidation
	}
	return ErrVariantValidation
}

func NewRootValidationError(problems ...string) *ValidationError {
	return &ValidationError{Stage: StageRoot, Problems: problems}
}

func NewVariantValidationError(variant string, problems ...string) *ValidationError {
	return &ValidationError{Stage: StageVariant, Variant: variant, Problems: problems}
}
