// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package activity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/stepcoach/internal/domain/game/lifecycle"
	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
)

type recordingInterrupter struct {
	mu       sync.Mutex
	calls    []string
	accepted map[string]bool
	gone     map[string]bool
}

func (r *recordingInterrupter) ForceInterrupt(_ context.Context, sessionID, reason string) (ports.InterruptResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sessionID+":"+reason)
	if r.gone[sessionID] {
		return ports.InterruptRefused, fmt.Errorf("%w: %s", lifecycle.ErrInvalidSession, sessionID)
	}
	if r.accepted == nil {
		r.accepted = map[string]bool{}
	}
	if r.accepted[sessionID] {
		return ports.InterruptRefused, nil
	}
	r.accepted[sessionID] = true
	return ports.InterruptAccepted, nil
}

var fixedNow = time.Unix(1_700_000_000, 0)

func clock() time.Time { return fixedNow }

func stores(t *testing.T) map[string]ports.ActivityStore {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]ports.ActivityStore{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client, "test", time.Hour),
	}
}

func TestRegistry_GetDefaultsToIdle(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry(st, clock)
			rec, err := r.Get(context.Background(), "u1")
			require.NoError(t, err)
			assert.Equal(t, model.ActivityIdle, rec.Kind)
			assert.True(t, rec.CanInterrupt)
		})
	}
}

func TestRegistry_TrySetIsCompareAndSwap(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry(st, clock)
			ctx := context.Background()

			rec, err := r.TrySet(ctx, "u1", 0, Music("q1", fixedNow))
			require.NoError(t, err)
			assert.Equal(t, uint64(1), rec.Version)

			_, err = r.TrySet(ctx, "u1", 0, Music("q2", fixedNow))
			require.ErrorIs(t, err, ErrActivityConflict)

			rec, err = r.TrySet(ctx, "u1", 1, Music("q2", fixedNow))
			require.NoError(t, err)
			assert.Equal(t, uint64(2), rec.Version)
			assert.Equal(t, "q2", rec.SessionID)
		})
	}
}

func TestRegistry_ArbitrateInterruptsRunningGame(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry(st, clock)
			intr := &recordingInterrupter{}
			r.BindInterrupter(intr)
			ctx := context.Background()

			_, err := r.Arbitrate(ctx, "u1", Game("s1", fixedNow), "new_game")
			require.NoError(t, err)
			assert.Empty(t, intr.calls, "idle user needs no interrupt")

			rec, err := r.Arbitrate(ctx, "u1", Music("q1", fixedNow), "music")
			require.NoError(t, err)
			assert.Equal(t, model.ActivityMusic, rec.Kind)
			assert.Equal(t, []string{"s1:music"}, intr.calls)
		})
	}
}

func TestRegistry_ArbitrateOverwritesVanishedGame(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry(st, clock)
			intr := &recordingInterrupter{gone: map[string]bool{"s1": true}}
			r.BindInterrupter(intr)
			ctx := context.Background()

			_, err := r.Arbitrate(ctx, "u1", Game("s1", fixedNow), "new_game")
			require.NoError(t, err)

			rec, err := r.Arbitrate(ctx, "u1", Game("s2", fixedNow), "new_game")
			require.NoError(t, err)
			assert.Equal(t, "s2", rec.SessionID)
			assert.Equal(t, []string{"s1:new_game"}, intr.calls)

			cur, err := r.Get(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, model.ActivityGame, cur.Kind)
			assert.Equal(t, "s2", cur.SessionID)
		})
	}
}

func TestRegistry_InterruptErrorsStillAbort(t *testing.T) {
	r := NewRegistry(NewMemoryStore(), clock)
	ctx := context.Background()

	_, err := r.Arbitrate(ctx, "u1", Game("s1", fixedNow), "new_game")
	require.NoError(t, err)

	_, err = r.Arbitrate(ctx, "u1", Music("q1", fixedNow), "music")
	require.Error(t, err, "no interrupter bound")

	cur, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", cur.SessionID)
}

func TestRegistry_EmergencyRefusesPreemption(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry(st, clock)
			r.BindInterrupter(&recordingInterrupter{})
			ctx := context.Background()

			_, err := r.Arbitrate(ctx, "u1", Emergency("42", fixedNow), "emergency")
			require.NoError(t, err)

			cur, err := r.Arbitrate(ctx, "u1", Game("s1", fixedNow), "new_game")
			require.ErrorIs(t, err, ErrActivityLocked)
			assert.Equal(t, model.ActivityEmergency, cur.Kind)

			released, err := r.Release(ctx, "u1", model.ActivityEmergency, "42")
			require.NoError(t, err)
			assert.True(t, released)

			_, err = r.Arbitrate(ctx, "u1", Game("s1", fixedNow), "new_game")
			require.NoError(t, err)
		})
	}
}

func TestRegistry_ClearIfOwned(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry(st, clock)
			r.BindInterrupter(&recordingInterrupter{})
			ctx := context.Background()

			_, err := r.Arbitrate(ctx, "u1", Game("s1", fixedNow), "new_game")
			require.NoError(t, err)

			cleared, err := r.ClearIfOwned(ctx, "u1", "other")
			require.NoError(t, err)
			assert.False(t, cleared)

			cleared, err = r.ClearIfOwned(ctx, "u1", "s1")
			require.NoError(t, err)
			assert.True(t, cleared)

			rec, err := r.Get(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, model.ActivityIdle, rec.Kind)

			cleared, err = r.ClearIfOwned(ctx, "u1", "s1")
			require.NoError(t, err)
			assert.False(t, cleared)
		})
	}
}

func TestRegistry_PreemptedGameCannotClearNewOwner(t *testing.T) {
	r := NewRegistry(NewMemoryStore(), clock)
	r.BindInterrupter(&recordingInterrupter{})
	ctx := context.Background()

	_, err := r.Arbitrate(ctx, "u1", Game("s1", fixedNow), "new_game")
	require.NoError(t, err)
	_, err = r.Arbitrate(ctx, "u1", Music("q1", fixedNow), "music")
	require.NoError(t, err)

	cleared, err := r.ClearIfOwned(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.False(t, cleared)

	rec, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.ActivityMusic, rec.Kind)
}

func TestRegistry_ConcurrentArbitrationInterruptsOnce(t *testing.T) {
	r := NewRegistry(NewMemoryStore(), clock)
	intr := &recordingInterrupter{}
	r.BindInterrupter(intr)
	ctx := context.Background()
	_, err := r.Arbitrate(ctx, "u1", Game("s1", fixedNow), "new_game")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Arbitrate(ctx, "u1", Music("q", fixedNow), "music")
		}()
	}
	wg.Wait()

	accepted := 0
	for _, ok := range intr.accepted {
		if ok {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)

	rec, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.ActivityMusic, rec.Kind)
}

func TestFactories(t *testing.T) {
	assert.False(t, Emergency("1", fixedNow).CanInterrupt)
	assert.True(t, Game("s", fixedNow).CanInterrupt)
	assert.Equal(t, StatusTutorialReady, GameTutorial("s", fixedNow).Status)
	assert.True(t, GameTutorial("s", fixedNow).OwnedBy("s"))
	assert.False(t, Music("s", fixedNow).OwnedBy("s"))
}
