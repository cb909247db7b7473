package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateSpec(t *testing.T) {
	require.NoError(t, ValidateSpec("@every 2m"))
	require.NoError(t, ValidateSpec("*/2 * * * *"))
	require.Error(t, ValidateSpec("every two minutes"))
	require.Error(t, ValidateSpec("0 */2 * * * *"))
}

func TestStartFiresImmediately(t *testing.T) {
	s := NewCronScheduler("@every 1h", time.UTC, quietLogger())
	fired := make(chan time.Time, 1)

	require.NoError(t, s.Start(context.Background(), func(ts time.Time) { fired <- ts }))
	defer s.Stop(context.Background())

	select {
	case ts := <-fired:
		assert.WithinDuration(t, time.Now(), ts, 5*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire at start")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	s := NewCronScheduler("@every 1h", nil, quietLogger())
	var runs atomic.Int32
	job := func(time.Time) { runs.Add(1) }

	require.NoError(t, s.Start(context.Background(), job))
	require.NoError(t, s.Start(context.Background(), job))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestStartRejectsBadExpression(t *testing.T) {
	s := NewCronScheduler("nonsense", time.UTC, quietLogger())
	require.Error(t, s.Start(context.Background(), func(time.Time) {}))
	require.Error(t, s.Start(context.Background(), nil))
}

func TestStopWaitsForRunningJob(t *testing.T) {
	s := NewCronScheduler("@every 1h", time.UTC, quietLogger())
	started := make(chan struct{})
	release := make(chan struct{})

	require.NoError(t, s.Start(context.Background(), func(time.Time) {
		close(started)
		<-release
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, s.Stop(ctx))
	close(release)
}
