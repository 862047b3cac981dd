// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

func TestSweeper_TimesOutQuietSession(t *testing.T) {
	f := newFixture(t)
	sid := f.start()
	f.fillWindow(sid, 10, 5)

	sw := &Sweeper{Orch: f.orch}
	assert.Equal(t, 1, sw.SweepOnce(f.ctx))

	f.clk.Advance(DefaultConfig().StaleAfter)
	assert.Equal(t, 0, sw.SweepOnce(f.ctx))

	p := f.progress(sid)
	assert.Equal(t, model.SessionInterrupted, p.State)
	assert.Equal(t, model.ReasonTimeout, p.EndReason)

	sum, ok := f.sink.Get(sid)
	require.True(t, ok)
	require.NotNil(t, sum.InterruptReason)
	assert.Equal(t, model.ReasonTimeout, *sum.InterruptReason)
	assert.Len(t, sum.Verse1Judgments, 1)
}

func TestSweeper_TimesOutSessionThatNeverStarted(t *testing.T) {
	f := newFixture(t)
	sid := f.start()
	sw := &Sweeper{Orch: f.orch}

	f.clk.Advance(DefaultConfig().StaleAfter)
	sw.SweepOnce(f.ctx)
	assert.Equal(t, model.SessionStarted, f.progress(sid).State, "tutorial time is not play time")

	f.clk.Advance(DefaultConfig().StartTimeout)
	sw.SweepOnce(f.ctx)
	assert.Equal(t, model.SessionInterrupted, f.progress(sid).State)
}

func TestSweeper_ClosesDwellingWindow(t *testing.T) {
	f := newFixture(t)
	sid := f.start()
	f.fillWindow(sid, 10, 2)

	sw := &Sweeper{Orch: f.orch}
	sw.SweepOnce(f.ctx)
	assert.Zero(t, f.scorer.Calls())

	f.clk.Advance(DefaultPolicy().Window.MaxDwell)
	sw.SweepOnce(f.ctx)
	assert.Equal(t, 1, f.scorer.Calls())

	p := f.progress(sid)
	assert.Equal(t, 1, p.NextActionIndex)
	assert.Empty(t, p.FrameBuffer)
	assert.Equal(t, model.SessionInProgress, p.State)
}

func TestSweeper_ObservesInterruptFlag(t *testing.T) {
	f := newFixture(t)
	sid := f.start()
	f.frame(sid, 10)

	_, err := f.orch.ForceInterrupt(f.ctx, sid, "emergency")
	require.NoError(t, err)
	assert.Equal(t, model.SessionInProgress, f.progress(sid).State, "interrupt is cooperative")

	(&Sweeper{Orch: f.orch}).SweepOnce(f.ctx)
	assert.Equal(t, model.SessionInterrupted, f.progress(sid).State)
}

func TestSweeper_ReclaimsExpiredLease(t *testing.T) {
	f := newFixture(t)
	sid := f.start()
	f.fillWindow(sid, 10, 5)

	_, err := f.store.UpdateProgress(f.ctx, sid, func(p *model.SessionProgress) error {
		p.Finalizing = &model.Lease{Owner: "crashed", ExpiresAt: f.clk.Now().Add(time.Second)}
		p.PendingState = model.SessionInterrupted
		p.PendingReason = "music"
		return nil
	})
	require.NoError(t, err)

	sw := &Sweeper{Orch: f.orch}
	sw.SweepOnce(f.ctx)
	assert.Equal(t, model.SessionInProgress, f.progress(sid).State, "live lease is honored")
	assert.Zero(t, f.sink.Count())

	f.clk.Advance(2 * time.Second)
	sw.SweepOnce(f.ctx)

	p := f.progress(sid)
	assert.Equal(t, model.SessionInterrupted, p.State)
	assert.Equal(t, "music", p.EndReason)
	assert.Nil(t, p.Finalizing)

	sum, ok := f.sink.Get(sid)
	require.True(t, ok)
	require.NotNil(t, sum.InterruptReason)
	assert.Equal(t, "music", *sum.InterruptReason)
}

func TestSweeper_DeletesTerminalSessionsAfterRetention(t *testing.T) {
	f := newFixture(t)
	sid := f.start()
	_, err := f.orch.ForceInterrupt(f.ctx, sid, "music")
	require.NoError(t, err)

	sw := &Sweeper{Orch: f.orch}
	sw.SweepOnce(f.ctx)
	assert.Equal(t, model.SessionInterrupted, f.progress(sid).State)

	f.clk.Advance(DefaultConfig().TerminalRetention)
	sw.SweepOnce(f.ctx)

	_, err = f.orch.Snapshot(f.ctx, sid)
	require.ErrorIs(t, err, ErrInvalidSession)
	_, ok := f.sink.Get(sid)
	assert.True(t, ok, "the durable summary outlives the session records")
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		(&Sweeper{Orch: f.orch, Conf: SweeperConfig{Interval: 5 * time.Millisecond}}).Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestKeyedLock_ReleasesEntries(t *testing.T) {
	k := newKeyedLock()
	unlock := k.Lock("a")
	assert.Equal(t, 1, k.size())
	unlock()
	assert.Equal(t, 0, k.size())
}

func TestPassGroup_CloseRefusesNewPasses(t *testing.T) {
	g := newPassGroup()
	ran := make(chan struct{})
	require.True(t, g.Go(time.Second, func(context.Context) { close(ran) }))
	<-ran

	require.NoError(t, g.Close(context.Background()))
	assert.False(t, g.Go(time.Second, func(context.Context) { t.Error("pass ran after close") }))
}

func TestPassGroup_CloseCancelsSlowPasses(t *testing.T) {
	g := newPassGroup()
	started := make(chan struct{})
	require.True(t, g.Go(time.Minute, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Close(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
