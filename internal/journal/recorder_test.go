package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/onelane/internal/bridge"
	"github.com/roach88/onelane/internal/testutil"
)

func TestRecorder_RecordsBridgeEvents(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	require.NoError(t, j.StartRun(ctx, "run-1", testutil.Epoch))

	rec := NewRecorder(j, "run-1",
		WithRecorderLogger(testutil.DiscardLogger()),
		WithRecorderNow(testutil.NewSteppingClock(time.Second).Now),
	)
	b := bridge.New(bridge.WithLogger(testutil.DiscardLogger()), bridge.WithObserver(rec))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- rec.Run(runCtx) }()

	_, err := b.RequestEntry("A1", bridge.Left)
	require.NoError(t, err)
	_, err = b.RequestEntry("B1", bridge.Right)
	require.NoError(t, err)
	require.NoError(t, b.Release("A1"))

	require.Eventually(t, func() bool {
		got, err := j.Events(ctx, Filter{})
		return err == nil && len(got) == 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	got, err := j.Events(ctx, Filter{})
	require.NoError(t, err)
	kinds := make([]bridge.EventKind, len(got))
	for i, r := range got {
		kinds[i] = r.Event.Kind
		assert.Equal(t, int64(i+1), r.Event.Seq)
	}
	assert.Equal(t, []bridge.EventKind{bridge.EventGranted, bridge.EventQueued, bridge.EventReleased}, kinds)
	assert.Equal(t, []bridge.ActorID{"B1"}, got[2].Event.Snapshot.WaitingRight)
}

func TestRecorder_FlushesOnCancel(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	require.NoError(t, j.StartRun(ctx, "run-1", testutil.Epoch))
	rec := NewRecorder(j, "run-1", WithRecorderLogger(testutil.DiscardLogger()))

	// Queue before the writer starts; cancellation must still flush them.
	for i := int64(1); i <= 5; i++ {
		rec.Observe(bridge.Event{Seq: i, Kind: bridge.EventIdle, Direction: bridge.None})
	}
	require.Equal(t, 5, rec.Pending())

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, rec.Run(runCtx))

	got, err := j.Events(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Equal(t, 0, rec.Pending())
}

func TestRecorder_DropsAfterClose(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	require.NoError(t, j.StartRun(ctx, "run-1", testutil.Epoch))
	rec := NewRecorder(j, "run-1", WithRecorderLogger(testutil.DiscardLogger()))

	rec.Observe(bridge.Event{Seq: 1, Kind: bridge.EventIdle, Direction: bridge.None})
	rec.Close()
	rec.Observe(bridge.Event{Seq: 2, Kind: bridge.EventIdle, Direction: bridge.None})

	require.NoError(t, rec.Run(ctx))

	got, err := j.Events(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Event.Seq)
}
