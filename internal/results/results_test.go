// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package results

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

func f64(v float64) *float64 { return &v }

func sampleSummary(sid, user string, ended time.Time) model.GameResultSummary {
	reason := "music"
	return model.GameResultSummary{
		SessionID:       sid,
		UserID:          user,
		SongID:          "song-1",
		Status:          model.SessionInterrupted,
		StartedAt:       ended.Add(-time.Minute).UTC(),
		EndedAt:         ended.UTC(),
		InterruptReason: &reason,
		Verse1Average:   f64(0.75),
		FinalScore:      f64(0.75),
		Level:           model.LevelMedium,
		ActionScores:    []model.ActionScore{{ActionCode: 1, Average: 0.75, Count: 2}},
		Verse1Judgments: []model.Judgment{{ActionCode: 1, Value: 1}, {ActionCode: 1, Value: 0.5}},
		Verse2Judgments: []model.Judgment{},
		Statistics:      model.Statistics{Total: 2, Perfect: 1, Good: 1, Average: 0.75},
	}
}

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends(t *testing.T) []backend {
	bs := []backend{
		{BackendMemory, func(*testing.T) Store { return NewMemoryStore() }},
		{BackendSQLite, func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "results.db"))
			require.NoError(t, err)
			return s
		}},
		{BackendBadger, func(t *testing.T) Store {
			s, err := OpenBadger(filepath.Join(t.TempDir(), "badger"))
			require.NoError(t, err)
			return s
		}},
	}
	if dsn := os.Getenv("STEPCOACH_TEST_POSTGRES_DSN"); dsn != "" {
		bs = append(bs, backend{BackendPostgres, func(t *testing.T) Store {
			s, err := OpenPostgres(context.Background(), dsn)
			require.NoError(t, err)
			return s
		}})
	}
	return bs
}

func TestStores(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			t.Run("PersistIsInsertIfAbsent", func(t *testing.T) {
				s := b.open(t)
				defer func() { _ = s.Close() }()
				ctx := context.Background()
				sid := fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
				sum := sampleSummary(sid, "u-insert", time.Now())

				created, err := s.Persist(ctx, sum)
				require.NoError(t, err)
				assert.True(t, created)

				changed := sum
				changed.Level = model.LevelHard
				created, err = s.Persist(ctx, changed)
				require.NoError(t, err)
				assert.False(t, created)

				got, err := s.Get(ctx, sid)
				require.NoError(t, err)
				if diff := cmp.Diff(sum, got); diff != "" {
					t.Fatalf("stored summary mismatch (-want +got):\n%s", diff)
				}
			})

			t.Run("GetUnknown", func(t *testing.T) {
				s := b.open(t)
				defer func() { _ = s.Close() }()
				_, err := s.Get(context.Background(), "missing")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("ListByUserNewestFirst", func(t *testing.T) {
				s := b.open(t)
				defer func() { _ = s.Close() }()
				ctx := context.Background()
				user := fmt.Sprintf("u-list-%d", time.Now().UnixNano())
				base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
				for i := 0; i < 4; i++ {
					_, err := s.Persist(ctx, sampleSummary(fmt.Sprintf("%s-s%d", user, i), user, base.Add(time.Duration(i)*time.Minute)))
					require.NoError(t, err)
				}
				_, err := s.Persist(ctx, sampleSummary(user+"-other", user+"x", base))
				require.NoError(t, err)

				got, err := s.ListByUser(ctx, user, 3)
				require.NoError(t, err)
				require.Len(t, got, 3)
				assert.Equal(t, user+"-s3", got[0].SessionID)
				assert.Equal(t, user+"-s2", got[1].SessionID)
				assert.Equal(t, user+"-s1", got[2].SessionID)

				none, err := s.ListByUser(ctx, "nobody", 0)
				require.NoError(t, err)
				assert.Empty(t, none)
			})

			t.Run("ConcurrentPersistCreatesOnce", func(t *testing.T) {
				s := b.open(t)
				defer func() { _ = s.Close() }()
				ctx := context.Background()
				sum := sampleSummary(fmt.Sprintf("race-%d", time.Now().UnixNano()), "u-race", time.Now())

				var (
					wg      sync.WaitGroup
					mu      sync.Mutex
					created int
				)
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						ok, err := s.Persist(ctx, sum)
						assert.NoError(t, err)
						if ok {
							mu.Lock()
							created++
							mu.Unlock()
						}
					}()
				}
				wg.Wait()
				assert.Equal(t, 1, created)
			})

			t.Run("RejectsSummaryWithoutIDs", func(t *testing.T) {
				s := b.open(t)
				defer func() { _ = s.Close() }()
				_, err := s.Persist(context.Background(), model.GameResultSummary{UserID: "u"})
				assert.Error(t, err)
				_, err = s.Persist(context.Background(), model.GameResultSummary{SessionID: "s"})
				assert.Error(t, err)
			})
		})
	}
}

func TestOpen_InstrumentsBackend(t *testing.T) {
	s, err := Open(context.Background(), Config{Backend: "memory"})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	created, err := s.Persist(context.Background(), sampleSummary("s1", "u1", time.Now()))
	require.NoError(t, err)
	assert.True(t, created)
	_, ok := s.(*instrumented)
	assert.True(t, ok)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{Backend: "memory"}.Validate())
	assert.NoError(t, Config{Backend: "sqlite", Path: "/tmp/x.db"}.Validate())
	assert.Error(t, Config{Backend: "sqlite"}.Validate())
	assert.Error(t, Config{Backend: "badger"}.Validate())
	assert.Error(t, Config{Backend: "postgres"}.Validate())
	assert.Error(t, Config{Backend: "bolt"}.Validate())
}

func TestSQLiteStore_Verify(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "v.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	issues, err := s.Verify(context.Background(), true)
	require.NoError(t, err)
	assert.Nil(t, issues)
}

func TestExportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")
	sums := []model.GameResultSummary{sampleSummary("s1", "u1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))}
	require.NoError(t, ExportJSON(context.Background(), path, sums))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []model.GameResultSummary
	require.NoError(t, json.Unmarshal(raw, &got))
	if diff := cmp.Diff(sums, got); diff != "" {
		t.Fatalf("export mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, ExportJSON(context.Background(), path, nil))
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(raw))
}
