// SPDX-License-Identifier: Apache-2.0

// Package wstransport serves the WebSocket ingestion protocol: one JSON
// message per WebSocket text message, answered by one ack per stored event.
package wstransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/adiadia/syrphid-receiver/internal/classifier"
	"github.com/adiadia/syrphid-receiver/internal/framing"
	"github.com/adiadia/syrphid-receiver/internal/metrics"
)

const (
	defaultBufferSize = 4096
	closeWriteTimeout = time.Second
)

// Dispatcher stores one raw message on a session.
type Dispatcher interface {
	Dispatch(ctx context.Context, session classifier.Session, raw []byte, receivedAt time.Time) (classifier.Result, error)
}

type Deps struct {
	Store      classifier.Store
	Dispatcher Dispatcher
	Logger     *slog.Logger

	// CheckOrigin defaults to accepting every origin. Extension pages
	// connect from chrome-extension:// and moz-extension:// origins.
	CheckOrigin    func(r *http.Request) bool
	ReadBufferSize int
	MaxMessageSize int64
}

// Ack is written after a message's unit of work commits. ID echoes the
// client id and is omitted when the client sent none.
type Ack struct {
	Type string          `json:"type"`
	ID   json.RawMessage `json:"id,omitempty"`
}

type Handler struct {
	store      classifier.Store
	dispatcher Dispatcher
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	maxMessage int64

	mu       sync.Mutex
	conns    map[string]*websocket.Conn
	draining bool
	wg       sync.WaitGroup
}

func New(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bufferSize := deps.ReadBufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	maxMessage := deps.MaxMessageSize
	if maxMessage <= 0 {
		maxMessage = framing.MaxFrameSize
	}

	checkOrigin := deps.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Handler{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		maxMessage: maxMessage,
		conns:      make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  bufferSize,
			WriteBufferSize: bufferSize,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.isDraining() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	connID := uuid.NewString()
	if !h.track(connID, conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(closeWriteTimeout))
		_ = conn.Close()
		return
	}
	defer h.wg.Done()

	h.serve(r.Context(), connID, conn)
}

func (h *Handler) track(connID string, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining {
		return false
	}
	h.conns[connID] = conn
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(connID string) {
	h.mu.Lock()
	delete(h.conns, connID)
	h.mu.Unlock()
}

// serve runs the read, dispatch, ack loop of one connection. Messages are
// handled strictly in arrival order.
func (h *Handler) serve(ctx context.Context, connID string, conn *websocket.Conn) {
	logger := h.logger.With("conn_id", connID)
	done := metrics.ConnectionOpened(metrics.TransportWebSocket)
	defer done()
	defer h.untrack(connID)
	defer conn.Close()

	conn.SetReadLimit(h.maxMessage)

	// Dispatch outlives request cancellation so an in-flight unit of work
	// always finishes.
	dispatchCtx := context.WithoutCancel(ctx)

	session, err := h.store.Open(dispatchCtx)
	if err != nil {
		logger.Error("open storage session failed", "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "storage unavailable"),
			time.Now().Add(closeWriteTimeout))
		return
	}
	defer session.Close()

	logger.Info("websocket connection opened", "remote_addr", conn.RemoteAddr().String())

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if h.isDraining() {
				logger.Info("websocket connection closed for shutdown")
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(closeWriteTimeout))
				return
			}
			h.logReadEnd(logger, err)
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		res, err := h.dispatcher.Dispatch(dispatchCtx, session, raw, time.Now())
		metrics.IncMessage(metrics.TransportWebSocket, metrics.OutcomeFor(err, res.DetailSkipped()))
		if err != nil {
			logger.Warn("message rejected", "error", err)
			continue
		}

		if err := conn.WriteJSON(Ack{Type: "ack", ID: res.ClientID}); err != nil {
			logger.Warn("write ack failed", "event_id", res.EventID, "error", err)
			return
		}
	}
}

func (h *Handler) isDraining() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.draining
}

func (h *Handler) logReadEnd(logger *slog.Logger, err error) {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		logger.Info("websocket connection closed by peer")
	case errors.Is(err, websocket.ErrReadLimit):
		logger.Warn("websocket message too large", "limit", h.maxMessage)
	default:
		logger.Warn("websocket read failed", "error", err)
	}
}

// Shutdown stops accepting connections, closes every open connection once
// its current message is done, then waits for the handlers to return
// or for ctx to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	// An expired read deadline unblocks a pending read. A handler that is
	// dispatching finishes and acks that message before it observes the
	// error, then sends the close frame itself.
	for _, conn := range conns {
		_ = conn.SetReadDeadline(time.Now())
	}

	waited := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of open connections.
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
