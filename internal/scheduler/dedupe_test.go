package scheduler

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inrcare/backend/internal/push"
)

func newBadgerDeduper(t *testing.T) *BadgerDeduper {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger, _ := zap.NewDevelopment()
	return NewBadgerDeduper(db, logger)
}

func TestNoopDeduper_NeverSuppresses(t *testing.T) {
	d := NoopDeduper{}
	d.Mark(1, "2026-08-25")
	assert.False(t, d.Seen(1, "2026-08-25"))
}

func TestBadgerDeduper_MarkThenSeen(t *testing.T) {
	d := newBadgerDeduper(t)

	assert.False(t, d.Seen(42, "2026-08-25"))
	d.Mark(42, "2026-08-25")
	assert.True(t, d.Seen(42, "2026-08-25"))

	// Independent per reminder and per day.
	assert.False(t, d.Seen(43, "2026-08-25"))
	assert.False(t, d.Seen(42, "2026-08-26"))
}

func TestSweep_DeduperSuppressesRepeatFires(t *testing.T) {
	f := newFixture(t, at(19, 50))
	f.sched.WithDeduper(newBadgerDeduper(t))

	f.sched.sweep()
	f.sched.sweep()
	f.sched.sweep()

	assert.Len(t, f.dispatcher.calls, 1)
}

func TestSweep_DeduperOnlyMarksAfterSuccessfulSend(t *testing.T) {
	f := newFixture(t, at(19, 50))
	f.sched.WithDeduper(newBadgerDeduper(t))

	// Nothing delivered: the reminder must stay eligible for the next sweep.
	f.dispatcher.result = push.Result{Sent: 0, Failed: 1}

	f.sched.sweep()
	f.sched.sweep()

	assert.Len(t, f.dispatcher.calls, 2)
}
