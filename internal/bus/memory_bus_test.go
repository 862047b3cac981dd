// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
	"github.com/ManuGH/stepcoach/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func TestMemoryBus_DeliversToSubscribers(t *testing.T) {
	b := NewMemoryBus()
	topic := ports.SessionTopic("s1")
	sub1, err := b.Subscribe(context.Background(), topic)
	require.NoError(t, err)
	sub2, err := b.Subscribe(context.Background(), topic)
	require.NoError(t, err)
	defer sub1.Close()
	defer sub2.Close()

	ev := ports.Event{Type: ports.EventFeedback, SessionID: "s1"}
	require.NoError(t, b.Publish(context.Background(), topic, ev))

	require.Equal(t, ev, <-sub1.C())
	require.Equal(t, ev, <-sub2.C())
}

func TestMemoryBusPublishContextTimeoutIncrementsDropMetrics(t *testing.T) {
	b := NewMemoryBus()
	topic := ports.SessionTopic("s2")
	sub, err := b.Subscribe(context.Background(), topic)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	// Fill subscriber channel to capacity so next publish blocks.
	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), topic, ports.Event{Type: ports.EventFeedback}))
	}

	initial := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("game.session", "timeout"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, topic, ports.Event{Type: ports.EventFeedback})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	final := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("game.session", "timeout"))
	require.Greater(t, final, initial)
}

func TestMemoryBus_CloseIsIdempotent(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "t")
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, ok := <-sub.C()
	require.False(t, ok)
	require.NoError(t, b.Publish(context.Background(), "t", ports.Event{}))
}

func TestMemoryBusPublishRejectsNilContext(t *testing.T) {
	b := NewMemoryBus()
	//nolint:staticcheck // nil context is the case under test
	err := b.Publish(nil, "topic", ports.Event{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "context is nil")
}
