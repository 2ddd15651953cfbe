// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adiadia/syrphid-receiver/internal/domain"
)

// Transports label values.
const (
	TransportWebSocket = "websocket"
	TransportNative    = "native"
)

// Message outcomes.
const (
	OutcomeStored          = "stored"
	OutcomeDetailSkipped   = "detail_skipped"
	OutcomeFramingError    = "framing_error"
	OutcomeDecodeError     = "decode_error"
	OutcomeRootInvalid     = "root_invalid"
	OutcomePersistenceFail = "persistence_error"
)

var (
	initOnce sync.Once

	messagesTotalCounter     *prometheus.CounterVec
	eventsPersistedCounter   *prometheus.CounterVec
	detailSkippedCounter     *prometheus.CounterVec
	connectionsActiveGauge   *prometheus.GaugeVec
	persistDurationHistogram prometheus.Histogram
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		messagesTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syrphid_messages_total",
				Help: "Total number of inbound messages by transport and outcome.",
			},
			[]string{"transport", "outcome"},
		)

		eventsPersistedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syrphid_events_persisted_total",
				Help: "Total number of committed events by canonical type.",
			},
			[]string{"type"},
		)

		detailSkippedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syrphid_detail_skipped_total",
				Help: "Total number of detail records skipped after variant validation failed.",
			},
			[]string{"variant"},
		)

		connectionsActiveGauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "syrphid_connections_active",
				Help: "Number of open connections by transport.",
			},
			[]string{"transport"},
		)

		persistDurationHistogram = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "syrphid_persist_duration_seconds",
				Help:    "Duration of one message unit of work in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		prometheus.MustRegister(
			messagesTotalCounter,
			eventsPersistedCounter,
			detailSkippedCounter,
			connectionsActiveGauge,
			persistDurationHistogram,
		)

		// Ensure vectors are visible at /metrics before first increment.
		for _, transport := range []string{TransportWebSocket, TransportNative} {
			connectionsActiveGauge.WithLabelValues(transport)
			for _, outcome := range []string{
				OutcomeStored,
				OutcomeDetailSkipped,
				OutcomeFramingError,
				OutcomeDecodeError,
				OutcomeRootInvalid,
				OutcomePersistenceFail,
			} {
				messagesTotalCounter.WithLabelValues(transport, outcome)
			}
		}

		for _, eventType := range []domain.EventType{
			domain.EventNetworkRequest,
			domain.EventNetworkResponse,
			domain.EventUserInteraction,
		} {
			eventsPersistedCounter.WithLabelValues(string(eventType))
		}
	})
}

func IncMessage(transport, outcome string) {
	Init()
	messagesTotalCounter.WithLabelValues(transport, outcome).Inc()
}

func IncEventPersisted(eventType domain.EventType) {
	Init()
	eventsPersistedCounter.WithLabelValues(string(eventType)).Inc()
}

func IncDetailSkipped(variant string) {
	Init()
	detailSkippedCounter.WithLabelValues(variant).Inc()
}

// ConnectionOpened increments the active gauge and returns the matching
// decrement.
func ConnectionOpened(transport string) func() {
	Init()
	g := connectionsActiveGauge.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}

func ObservePersistDuration(d time.Duration) {
	Init()
	persistDurationHistogram.Observe(d.Seconds())
}

// OutcomeFor maps a dispatch error onto the outcome label.
func OutcomeFor(err error, detailSkipped bool) string {
	switch {
	case err == nil && detailSkipped:
		return OutcomeDetailSkipped
	case err == nil:
		return OutcomeStored
	case errors.Is(err, domain.ErrFraming):
		return OutcomeFramingError
	case errors.Is(err, domain.ErrDecode):
		return OutcomeDecodeError
	case errors.Is(err, domain.ErrRootValidation):
		return OutcomeRootInvalid
	default:
		return OutcomePersistenceFail
	}
}
