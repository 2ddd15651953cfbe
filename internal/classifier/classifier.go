// SPDX-License-Identifier: Apache-2.0

// Package classifier turns one raw telemetry message into rows: it decodes
// and validates the envelope, writes the event row, then runs the handler
// registered for the event type inside the same unit of work.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/adiadia/syrphid-receiver/internal/domain"
	"github.com/adiadia/syrphid-receiver/internal/metrics"
	"github.com/adiadia/syrphid-receiver/internal/notify"
	"github.com/adiadia/syrphid-receiver/internal/schema"
)

type Deps struct {
	Validator *schema.Validator
	Taxonomy  Taxonomy
	Publisher notify.Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

// Result describes a committed message. VariantErr is set when the event
// row was kept but its detail record was skipped.
type Result struct {
	EventID    int64
	Type       domain.EventType
	ClientID   json.RawMessage
	VariantErr error
}

func (r Result) DetailSkipped() bool {
	return r.VariantErr != nil
}

// message is the state shared by the handlers of one dispatch.
type message struct {
	raw     []byte
	doc     map[string]any
	env     schema.Envelope
	eventID int64
}

type handler func(ctx context.Context, uow UnitOfWork, msg *message) error

type detailHandler func(ctx context.Context, uow UnitOfWork, interactionID int64, data json.RawMessage) error

type Dispatcher struct {
	validator *schema.Validator
	publisher notify.Publisher
	logger    *slog.Logger
	now       func() time.Time

	handlers map[domain.EventType]handler
	subKinds map[string]domain.DetailKind
	details  map[domain.DetailKind]detailHandler
	generic  map[domain.EventType]bool
}

// New builds the dispatch tables once. Validator must be set.
func New(deps Deps) (*Dispatcher, error) {
	if deps.Validator == nil {
		return nil, errors.New("classifier: nil validator")
	}

	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	pub := deps.Publisher
	if pub == nil {
		pub = notify.NoopPublisher{}
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	tax := deps.Taxonomy.withDefaults()

	d := &Dispatcher{
		validator: deps.Validator,
		publisher: pub,
		logger:    l,
		now:       now,
		subKinds:  tax.subKinds(),
		generic:   tax.genericTypes(),
	}

	d.handlers = map[domain.EventType]handler{
		schema.CanonicalType(tax.NetworkRequest):  d.handleNetworkRequest,
		schema.CanonicalType(tax.NetworkResponse): d.handleNetworkResponse,
		schema.CanonicalType(tax.UserInteraction): d.handleUserInteraction,
	}

	d.details = map[domain.DetailKind]detailHandler{
		domain.DetailMouse: d.handleMouse,
		domain.DetailKey:   d.handleKey,
		domain.DetailTouch: d.handleTouch,
	}

	return d, nil
}

// Decode parses raw as a single JSON object. Numbers keep their literal
// form.
func Decode(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after message", domain.ErrDecode)
	}

	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: message is not a JSON object", domain.ErrDecode)
	}
	return doc, nil
}

// Dispatch classifies and stores one message in its own unit of work.
//
// Decode and root validation failures write nothing. A variant validation
// failure still commits the event row and is reported in Result.VariantErr.
// Persistence failures roll the whole unit of work back.
func (d *Dispatcher) Dispatch(ctx context.Context, session Session, raw []byte, receivedAt time.Time) (Result, error) {
	doc, err := Decode(raw)
	if err != nil {
		return Result{}, err
	}

	env, err := d.validator.Envelope(doc)
	if err != nil {
		return Result{}, err
	}

	if receivedAt.IsZero() {
		receivedAt = d.now()
	}
	occurredAt := env.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = d.now().UTC()
	}

	started := time.Now()

	uow, err := session.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer uow.Rollback()

	eventID, err := uow.InsertEvent(ctx, eventRecord(env, occurredAt, receivedAt))
	if err != nil {
		return Result{}, err
	}

	msg := &message{raw: raw, doc: doc, env: env, eventID: eventID}
	res := Result{EventID: eventID, Type: env.EventType, ClientID: env.ClientID}

	h, ok := d.handlers[env.EventType]
	if !ok {
		if !d.generic[env.EventType] {
			d.logger.Debug("unrecognized event type stored generically", "event_id", eventID, "type", env.EventType)
		}
		h = d.handleGeneric
	}

	if err := h(ctx, uow, msg); err != nil {
		var verr *domain.ValidationError
		if !errors.As(err, &verr) || verr.Stage != domain.StageVariant {
			return Result{}, err
		}
		d.logger.Warn("detail skipped",
			"event_id", eventID,
			"type", env.EventType,
			"variant", verr.Variant,
			"error", err,
		)
		metrics.IncDetailSkipped(verr.Variant)
		res.VariantErr = err
	}

	if err := uow.Commit(); err != nil {
		return Result{}, err
	}

	metrics.ObservePersistDuration(time.Since(started))
	metrics.IncEventPersisted(env.EventType)
	d.logger.Debug("event stored",
		"event_id", eventID,
		"type", env.EventType,
		"session_id", env.SessionID,
		"sequence_number", env.SequenceNumber,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	d.publish(ctx, env, res)
	return res, nil
}

func (d *Dispatcher) publish(ctx context.Context, env schema.Envelope, res Result) {
	note := notify.EventPersisted{
		EventID:        res.EventID,
		Type:           res.Type,
		SessionID:      env.SessionID,
		SequenceNumber: env.SequenceNumber,
		DetailSkipped:  res.DetailSkipped(),
	}
	if err := d.publisher.Publish(ctx, notify.Subject(res.Type), note); err != nil {
		d.logger.Warn("publish event notification failed", "event_id", res.EventID, "type", res.Type, "error", err)
	}
}

func eventRecord(env schema.Envelope, occurredAt, receivedAt time.Time) domain.EventRecord {
	return domain.EventRecord{
		Type:             env.EventType,
		Timestamp:        occurredAt,
		ReceivedAt:       receivedAt.UTC(),
		SessionID:        env.SessionID,
		SequenceNumber:   env.SequenceNumber,
		UserAgent:        env.UserAgent,
		ExtensionVersion: env.ExtensionVersion,
		OperatingSystem:  env.OperatingSystem,
		BrowserVersion:   env.BrowserVersion,
		ScreenWidth:      env.ScreenResolution.Width,
		ScreenHeight:     env.ScreenResolution.Height,
		TabID:            env.TabID,
		URL:              env.URL,
		Initiator:        env.Initiator,
		AdditionalData:   env.AdditionalData,
		Target:           env.Target,
	}
}
