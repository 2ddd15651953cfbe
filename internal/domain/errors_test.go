// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidationErrorUnwrapsToStage(t *testing.T) {
	root := NewRootValidationError("sessionId is required")
	if !errors.Is(root, ErrRootValidation) {
		t.Fatalf("expected root error to match ErrRootValidation")
	}
	if errors.Is(root, ErrVariantValidation) {
		t.Fatalf("root error must not match ErrVariantValidation")
	}

	variant := NewVariantValidationError("mouse", "clientX is required")
	wrapped := fmt.Errorf("handle interaction: %w", variant)
	if !errors.Is(wrapped, ErrVariantValidation) {
		t.Fatalf("expected wrapped variant error to match ErrVariantValidation")
	}

	var ve *ValidationError
	if !errors.As(wrapped, &ve) {
		t.Fatal("expected errors.As to find ValidationError")
	}
	if ve.Variant != "mouse" {
		t.Fatalf("unexpected variant: %s", ve.Variant)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewRootValidationError("sessionId is required", "userAgent is required")
	msg := err.Error()
	if !strings.HasPrefix(msg, "envelope: ") {
		t.Fatalf("unexpected message prefix: %s", msg)
	}
	if !strings.Contains(msg, "sessionId is required; userAgent is required") {
		t.Fatalf("unexpected message: %s", msg)
	}

	empty := NewVariantValidationError("key")
	if empty.Error() != "key: invalid" {
		t.Fatalf("unexpected empty message: %s", empty.Error())
	}
}

func TestEventTypeConstants(t *testing.T) {
	if EventNetworkRequest != "network_request" {
		t.Fatalf("unexpected EventNetworkRequest value: %s", EventNetworkRequest)
	}
	if EventNetworkResponse != "network_response" {
		t.Fatalf("unexpected EventNetworkResponse value: %s", EventNetworkResponse)
	}
	if EventUserInteraction != "user_interaction" {
		t.Fatalf("unexpected EventUserInteraction value: %s", EventUserInteraction)
	}
	if DetailMouse != "mouse" || DetailKey != "key" || DetailTouch != "touch" {
		t.Fatalf("unexpected detail kinds: %s %s %s", DetailMouse, DetailKey, DetailTouch)
	}
}
