// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
)

func newSession(id string) (*model.SessionProgress, *model.SessionDescriptor) {
	now := time.Unix(1_700_000_000, 0)
	p := model.NewProgress(id, "user-1", "song-1", now)
	tl := model.Timeline{{Time: 1, ActionCode: 1, ActionName: "clap"}}
	d := &model.SessionDescriptor{
		SessionID: id,
		UserID:    "user-1",
		SongID:    "song-1",
		BPM:       100,
		Verse1:    tl,
		Verse2:    map[int]model.Timeline{1: tl, 2: tl, 3: tl},
		CreatedAt: now,
	}
	return p, d
}

// runStoreContract exercises behaviour every SessionStore must share.
func runStoreContract(t *testing.T, open func(t *testing.T) ports.SessionStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := open(t)
		p, d := newSession("s-create")
		require.NoError(t, s.Create(ctx, p, d))
		require.ErrorIs(t, s.Create(ctx, p, d), ports.ErrExists)

		gotP, err := s.GetProgress(ctx, "s-create")
		require.NoError(t, err)
		assert.Equal(t, model.SessionStarted, gotP.State)
		assert.Equal(t, "user-1", gotP.UserID)

		gotD, err := s.GetDescriptor(ctx, "s-create")
		require.NoError(t, err)
		assert.Len(t, gotD.Verse2, 3)
		assert.Equal(t, "clap", gotD.Verse2[2][0].ActionName)
	})

	t.Run("missing session", func(t *testing.T) {
		s := open(t)
		_, err := s.GetProgress(ctx, "nope")
		require.ErrorIs(t, err, ports.ErrNotFound)
		_, err = s.UpdateProgress(ctx, "nope", func(*model.SessionProgress) error { return nil })
		require.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("update bumps revision", func(t *testing.T) {
		s := open(t)
		p, d := newSession("s-rev")
		require.NoError(t, s.Create(ctx, p, d))

		out, err := s.UpdateProgress(ctx, "s-rev", func(p *model.SessionProgress) error {
			p.NextActionIndex = 1
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), out.Revision)
		assert.Equal(t, 1, out.NextActionIndex)

		same, err := s.UpdateProgress(ctx, "s-rev", func(p *model.SessionProgress) error {
			p.NextActionIndex = 99
			return ports.ErrNoChange
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), same.Revision)
		assert.Equal(t, 1, same.NextActionIndex)
	})

	t.Run("concurrent updates serialize", func(t *testing.T) {
		s := open(t)
		p, d := newSession("s-conc")
		require.NoError(t, s.Create(ctx, p, d))

		const n = 6
		var wg sync.WaitGroup
		var failed atomic.Int32
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.UpdateProgress(ctx, "s-conc", func(p *model.SessionProgress) error {
					p.JudgmentRequestCount++
					return nil
				})
				if err != nil {
					failed.Add(1)
				}
			}()
		}
		wg.Wait()

		got, err := s.GetProgress(ctx, "s-conc")
		require.NoError(t, err)
		assert.Equal(t, n-int(failed.Load()), got.JudgmentRequestCount)
		assert.Equal(t, uint64(got.JudgmentRequestCount), got.Revision)
	})

	t.Run("update descriptor", func(t *testing.T) {
		s := open(t)
		p, d := newSession("s-desc")
		require.NoError(t, s.Create(ctx, p, d))
		out, err := s.UpdateDescriptor(ctx, "s-desc", func(d *model.SessionDescriptor) error {
			d.TutorialSuccessCount++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, out.TutorialSuccessCount)
	})

	t.Run("interrupt flag is set once and taken once", func(t *testing.T) {
		s := open(t)
		ok, err := s.SetInterrupt(ctx, "s-int", "music")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.SetInterrupt(ctx, "s-int", "emergency")
		require.NoError(t, err)
		assert.False(t, ok)

		reason, ok, err := s.PeekInterrupt(ctx, "s-int")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "music", reason)

		reason, ok, err = s.TakeInterrupt(ctx, "s-int")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "music", reason)

		_, ok, err = s.TakeInterrupt(ctx, "s-int")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete and list", func(t *testing.T) {
		s := open(t)
		for _, id := range []string{"b", "a", "c"} {
			p, d := newSession(id)
			require.NoError(t, s.Create(ctx, p, d))
		}
		ids, err := s.ListSessionIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ids)

		require.NoError(t, s.Delete(ctx, "b"))
		require.NoError(t, s.Delete(ctx, "b"))
		ids, err = s.ListSessionIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, ids)

		_, err = s.GetDescriptor(ctx, "b")
		require.ErrorIs(t, err, ports.ErrNotFound)
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) ports.SessionStore {
		return NewMemoryStore(Options{}, nil)
	})
}

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStoreWithClient(client, Options{TTL: time.Minute, InterruptTTL: 5 * time.Second})
}

func TestRedisStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) ports.SessionStore {
		_, s := setupMiniRedis(t)
		return s
	})
}

func TestRedisStore_SlidingTTL(t *testing.T) {
	mr, s := setupMiniRedis(t)
	ctx := context.Background()
	p, d := newSession("s-ttl")
	require.NoError(t, s.Create(ctx, p, d))

	mr.FastForward(40 * time.Second)
	_, err := s.UpdateProgress(ctx, "s-ttl", func(p *model.SessionProgress) error {
		p.NextActionIndex++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(s.progressKey("s-ttl")))
	assert.Equal(t, time.Minute, mr.TTL(s.descriptorKey("s-ttl")))

	mr.FastForward(61 * time.Second)
	_, err = s.GetProgress(ctx, "s-ttl")
	require.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRedisStore_InterruptFlagExpires(t *testing.T) {
	mr, s := setupMiniRedis(t)
	ctx := context.Background()
	ok, err := s.SetInterrupt(ctx, "s-x", "music")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)
	_, ok, err = s.PeekInterrupt(ctx, "s-x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_UnavailableIsClassified(t *testing.T) {
	mr, s := setupMiniRedis(t)
	mr.Close()

	_, err := s.GetProgress(context.Background(), "s")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestMemoryStore_SlidingTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	s := NewMemoryStore(Options{TTL: time.Minute}, clock)
	ctx := context.Background()

	p, d := newSession("s-ttl")
	require.NoError(t, s.Create(ctx, p, d))

	now = now.Add(40 * time.Second)
	_, err := s.UpdateProgress(ctx, "s-ttl", func(p *model.SessionProgress) error { return nil })
	require.NoError(t, err)

	now = now.Add(40 * time.Second)
	_, err = s.GetProgress(ctx, "s-ttl")
	require.NoError(t, err, "write must have refreshed the TTL")

	now = now.Add(61 * time.Second)
	_, err = s.GetProgress(ctx, "s-ttl")
	require.ErrorIs(t, err, ports.ErrNotFound)

	ids, err := s.ListSessionIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.Create(ctx, p, d), "expired id can be reused")
}
