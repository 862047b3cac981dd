// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
	"github.com/ManuGH/stepcoach/internal/log"
	"github.com/ManuGH/stepcoach/internal/metrics"
)

// MemoryBus is an in-process pub/sub for session events. Delivery is
// best-effort: a publish blocks until every subscriber took the event or
// the publish context ends.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]chan ports.Event
}

const (
	dropLogEvery  = 100
	subscriberCap = 64
)

var dropCount atomic.Uint64

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]chan ports.Event)}
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

// topicKind strips the per-session suffix so metric labels stay bounded.
func topicKind(topic string) string {
	if i := strings.LastIndex(topic, "."); i > 0 {
		return topic[:i]
	}
	return topic
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, ev ports.Event) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	// Held for the whole fan-out so Close cannot close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- ev:
		case <-ctx.Done():
			reason := publishDropReason(ctx.Err())
			metrics.IncBusDropReason(topicKind(topic), reason)
			count := dropCount.Add(1)
			if count%dropLogEvery == 1 {
				log.L().Warn().
					Str("topic", topic).
					Str("reason", reason).
					Uint64("dropped", count).
					Msg("memory bus failed to publish due to context cancellation")
			}
			return fmt.Errorf("publish topic %q: %w", topic, ctx.Err())
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (ports.Subscription, error) {
	ch := make(chan ports.Event, subscriberCap)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	return &memSub{b: b, topic: topic, ch: ch}, nil
}

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan ports.Event
	once  sync.Once
}

func (s *memSub) C() <-chan ports.Event {
	return s.ch
}

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		lst := s.b.subs[s.topic]
		out := lst[:0]
		for _, c := range lst {
			if c != s.ch {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(s.b.subs, s.topic)
		} else {
			s.b.subs[s.topic] = out
		}
		close(s.ch)
	})
	return nil
}

var _ ports.Bus = (*MemoryBus)(nil)
