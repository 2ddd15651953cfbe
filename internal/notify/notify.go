// SPDX-License-Identifier: Apache-2.0

// Package notify publishes a notification for every committed event so
// downstream consumers can react without polling the database.
package notify

import (
	"context"

	"github.com/adiadia/syrphid-receiver/internal/domain"
)

// SubjectPrefix is followed by the canonical event type.
const SubjectPrefix = "syrphid.events."

// Publisher sends JSON-encoded notifications to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
	Close() error
}

// EventPersisted is published after a message's unit of work commits.
type EventPersisted struct {
	EventID        int64            `json:"event_id"`
	Type           domain.EventType `json:"type"`
	SessionID      string           `json:"session_id"`
	SequenceNumber int64            `json:"sequence_number"`
	DetailSkipped  bool             `json:"detail_skipped"`
}

func Subject(eventType domain.EventType) string {
	return SubjectPrefix + string(eventType)
}
