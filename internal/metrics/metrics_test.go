// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/adiadia/syrphid-receiver/internal/domain"
)

func TestOutcomeFor(t *testing.T) {
	tests := []struct {
		err     error
		skipped bool
		want    string
	}{
		{err: nil, want: OutcomeStored},
		{err: nil, skipped: true, want: OutcomeDetailSkipped},
		{err: fmt.Errorf("frame: %w", domain.ErrFraming), want: OutcomeFramingError},
		{err: fmt.Errorf("%w: unexpected end", domain.ErrDecode), want: OutcomeDecodeError},
		{err: domain.NewRootValidationError("sessionId is required"), want: OutcomeRootInvalid},
		{err: fmt.Errorf("%w: insert event", domain.ErrPersistence), want: OutcomePersistenceFail},
	}
	for _, tc := range tests {
		if got := OutcomeFor(tc.err, tc.skipped); got != tc.want {
			t.Fatalf("OutcomeFor(%v, %v): expected %s got %s", tc.err, tc.skipped, tc.want, got)
		}
	}
}

func TestCountersAndGauge(t *testing.T) {
	Init()

	before := testutil.ToFloat64(messagesTotalCounter.WithLabelValues(TransportNative, OutcomeStored))
	IncMessage(TransportNative, OutcomeStored)
	if got := testutil.ToFloat64(messagesTotalCounter.WithLabelValues(TransportNative, OutcomeStored)); got != before+1 {
		t.Fatalf("expected messages counter %v, got %v", before+1, got)
	}

	done := ConnectionOpened(TransportWebSocket)
	if got := testutil.ToFloat64(connectionsActiveGauge.WithLabelValues(TransportWebSocket)); got < 1 {
		t.Fatalf("expected active connection, got %v", got)
	}
	done()

	IncEventPersisted(domain.EventNavigation)
	IncDetailSkipped("mouse")
	ObservePersistDuration(5 * time.Millisecond)
}
