package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.RemindersDue.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.RemindersDue))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RemindersDue))
}

func TestObserveSweep(t *testing.T) {
	m := New()

	m.ObserveSweep(5 * time.Millisecond)
	m.ObserveSweep(10 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SweepsTotal))
}

func TestRecordDispatch(t *testing.T) {
	m := New()

	m.RecordDispatch(3, 1)
	m.RecordDispatch(1, 0)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.PushSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PushFailed))
}

func TestDefault_Singleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
