package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ntanasko/floorsync/internal/listing"
	syncer "github.com/ntanasko/floorsync/internal/sync"
)

type fakeRunner struct {
	runs atomic.Int64
	err  error
}

func (f *fakeRunner) Run(context.Context) (listing.RunRecord, error) {
	f.runs.Add(1)
	return listing.RunRecord{}, f.err
}

type fixedStall struct{ stalled bool }

func (f fixedStall) Stalled(time.Duration) bool { return f.stalled }

func TestTriggerAsyncRuns(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s := New(runner, fixedStall{}, time.Minute, zap.NewNop())
	s.TriggerAsync()

	require.Eventually(t, func() bool {
		return runner.runs.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCheckStallTriggersTakeover(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s := New(runner, fixedStall{stalled: true}, time.Minute, zap.NewNop())
	s.checkStall()
	require.Equal(t, int64(1), runner.runs.Load())

	quiet := New(runner, fixedStall{stalled: false}, time.Minute, zap.NewNop())
	quiet.checkStall()
	require.Equal(t, int64(1), runner.runs.Load())
}

// TestRunSwallowsAlreadyRunning verifies a lease-held attempt is logged
// and dropped, not surfaced as a failure.
func TestRunSwallowsAlreadyRunning(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: syncer.ErrAlreadyRunning}
	s := New(runner, fixedStall{}, time.Minute, zap.NewNop())
	s.run()
	require.Equal(t, int64(1), runner.runs.Load())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	s := New(&fakeRunner{}, fixedStall{}, time.Minute, zap.NewNop())
	require.Error(t, s.Start("not a cron spec"))
}
