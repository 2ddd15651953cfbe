// SPDX-License-Identifier: Apache-2.0

// Package nativehost serves the browser native messaging protocol:
// length-prefixed JSON frames over a byte stream pair, normally the
// process's stdin and stdout.
package nativehost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/adiadia/syrphid-receiver/internal/classifier"
	"github.com/adiadia/syrphid-receiver/internal/domain"
	"github.com/adiadia/syrphid-receiver/internal/framing"
	"github.com/adiadia/syrphid-receiver/internal/metrics"
)

const DefaultIdleInterval = 100 * time.Millisecond

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Dispatcher stores one raw message on a session.
type Dispatcher interface {
	Dispatch(ctx context.Context, session classifier.Session, raw []byte, receivedAt time.Time) (classifier.Result, error)
}

type Deps struct {
	Store      classifier.Store
	Dispatcher Dispatcher
	Logger     *slog.Logger

	// IdleInterval is the pause after the input reports end of stream
	// before reading again.
	IdleInterval time.Duration
}

// Status is the reply frame written for every decoded message.
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      int64  `json:"id,omitempty"`
}

type Host struct {
	store      classifier.Store
	dispatcher Dispatcher
	logger     *slog.Logger
	idle       time.Duration
}

func New(deps Deps) *Host {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idle := deps.IdleInterval
	if idle <= 0 {
		idle = DefaultIdleInterval
	}
	return &Host{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		idle:       idle,
	}
}

type frameResult struct {
	raw []byte
	err error
}

// Serve reads frames from r and writes one status frame per decoded message
// to w until ctx is cancelled or the input fails. End of stream is not
// terminal: the host idles and polls again. Reads happen on their own
// goroutine, so cancellation returns even while r blocks; that goroutine
// stays parked in Read until r is closed.
func (h *Host) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	done := metrics.ConnectionOpened(metrics.TransportNative)
	defer done()

	session, err := h.store.Open(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("open storage session: %w", err)
	}
	defer session.Close()

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	frames := make(chan frameResult, 1)
	go h.readFrames(readCtx, r, frames)

	out := framing.NewWriter(w)
	h.logger.Info("native host started")

	for {
		select {
		case <-ctx.Done():
			// A frame already read is still answered.
			select {
			case f, ok := <-frames:
				if ok && f.err == nil {
					if err := h.reply(ctx, session, out, f.raw); err != nil {
						h.logger.Warn("final status not written", "error", err)
					}
				}
			default:
			}
			h.logger.Info("native host stopping")
			return nil
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			switch {
			case f.err == nil:
			case errors.Is(f.err, domain.ErrFraming):
				metrics.IncMessage(metrics.TransportNative, metrics.OutcomeFramingError)
				h.logger.Warn("frame rejected", "error", f.err)
				continue
			default:
				return fmt.Errorf("read frame: %w", f.err)
			}
			if err := h.reply(ctx, session, out, f.raw); err != nil {
				return err
			}
		}
	}
}

// readFrames decodes frames until ctx is done or the input fails for good.
func (h *Host) readFrames(ctx context.Context, r io.Reader, frames chan<- frameResult) {
	defer close(frames)
	for {
		raw, err := framing.Decode(r)
		if errors.Is(err, framing.ErrEndOfStream) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(h.idle):
			}
			continue
		}
		select {
		case frames <- frameResult{raw: raw, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil && !errors.Is(err, domain.ErrFraming) {
			return
		}
	}
}

func (h *Host) reply(ctx context.Context, session classifier.Session, out *framing.Writer, raw []byte) error {
	status := h.handle(ctx, session, raw)
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := out.WriteFrame(payload); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

func (h *Host) handle(ctx context.Context, session classifier.Session, raw []byte) Status {
	res, err := h.dispatcher.Dispatch(context.WithoutCancel(ctx), session, raw, time.Now())
	metrics.IncMessage(metrics.TransportNative, metrics.OutcomeFor(err, res.DetailSkipped()))
	if err != nil {
		h.logger.Warn("message rejected", "error", err)
		return Status{Status: StatusError, Message: err.Error()}
	}
	return Status{Status: StatusSuccess, Message: "event stored", ID: res.EventID}
}
