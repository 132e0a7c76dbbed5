package worker

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSubmitAndWait(t *testing.T) {
	p := NewPool(2, zerolog.Nop())
	defer p.Close()

	j := p.Submit("sum", func(ctx context.Context, r Reporter) (any, error) {
		for i := 1; i <= 4; i++ {
			r.Report(i, 4)
		}
		return 42, nil
	})

	snap, err := p.Wait(waitCtx(t), j.ID())
	require.NoError(t, err)
	assert.Equal(t, Done, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, 42, snap.Result)
	assert.False(t, snap.Finished.IsZero())
	assert.True(t, snap.Status.Final())
}

func TestFailedJobKeepsError(t *testing.T) {
	p := NewPool(1, zerolog.Nop())
	defer p.Close()

	boom := errors.New("boom")
	j := p.Submit("fail", func(ctx context.Context, r Reporter) (any, error) {
		return nil, errors.Wrap(boom, "step")
	})
	snap, err := p.Wait(waitCtx(t), j.ID())
	require.NoError(t, err)
	assert.Equal(t, Failed, snap.Status)
	assert.Equal(t, "step: boom", snap.Error)
	assert.True(t, errors.Is(snap.Err(), boom))
}

func TestPanicBecomesFailure(t *testing.T) {
	p := NewPool(1, zerolog.Nop())
	defer p.Close()

	j := p.Submit("panic", func(ctx context.Context, r Reporter) (any, error) {
		panic("kaboom")
	})
	snap, err := p.Wait(waitCtx(t), j.ID())
	require.NoError(t, err)
	assert.Equal(t, Failed, snap.Status)
	assert.Contains(t, snap.Error, "kaboom")
}

func TestCancelRunningJob(t *testing.T) {
	p := NewPool(1, zerolog.Nop())
	defer p.Close()

	started := make(chan struct{})
	j := p.Submit("block", func(ctx context.Context, r Reporter) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started
	require.NoError(t, p.Cancel(j.ID()))

	snap, err := p.Wait(waitCtx(t), j.ID())
	require.NoError(t, err)
	assert.Equal(t, Canceled, snap.Status)
}

func TestQueuedJobWaitsForSlot(t *testing.T) {
	p := NewPool(1, zerolog.Nop())
	defer p.Close()

	release := make(chan struct{})
	running := make(chan struct{})
	first := p.Submit("first", func(ctx context.Context, r Reporter) (any, error) {
		close(running)
		<-release
		return nil, nil
	})
	<-running
	second := p.Submit("second", func(ctx context.Context, r Reporter) (any, error) {
		return "ok", nil
	})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Pending, second.Snapshot().Status)
	close(release)

	snap, err := p.Wait(waitCtx(t), second.ID())
	require.NoError(t, err)
	assert.Equal(t, Done, snap.Status)
	<-first.Done()
}

func TestUnknownJob(t *testing.T) {
	p := NewPool(1, zerolog.Nop())
	defer p.Close()

	_, ok := p.Get("missing")
	assert.False(t, ok)
	assert.True(t, errors.Is(p.Cancel("missing"), ErrNotFound))
	_, err := p.Wait(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestForgetDropsFinishedJobs(t *testing.T) {
	p := NewPool(1, zerolog.Nop())
	defer p.Close()

	j := p.Submit("quick", func(ctx context.Context, r Reporter) (any, error) { return nil, nil })
	<-j.Done()
	assert.Equal(t, 1, p.Forget(-time.Second))
	_, ok := p.Get(j.ID())
	assert.False(t, ok)
}
