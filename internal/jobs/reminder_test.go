package jobs

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReminderSchedulerFires(t *testing.T) {
	s := NewReminderScheduler()
	defer s.Stop()

	fired := make(chan struct{}, 1)
	s.Schedule("sender-1", 10*time.Millisecond, func() { fired <- struct{}{} })
	assert.Equal(t, 1, s.Pending())

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("reminder never fired")
	}

	assert.Eventually(t, func() bool { return s.Pending() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestReminderSchedulerReplacesPendingTimer(t *testing.T) {
	s := NewReminderScheduler()
	defer s.Stop()

	var first, second atomic.Int32
	s.Schedule("sender-1", 30*time.Millisecond, func() { first.Add(1) })
	s.Schedule("sender-1", 10*time.Millisecond, func() { second.Add(1) })
	assert.Equal(t, 1, s.Pending())

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestReminderSchedulerCancel(t *testing.T) {
	s := NewReminderScheduler()
	defer s.Stop()

	var fired atomic.Int32
	s.Schedule("sender-1", 20*time.Millisecond, func() { fired.Add(1) })
	s.Cancel("sender-1")

	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestReminderSchedulerCancelUnknownSender(t *testing.T) {
	s := NewReminderScheduler()
	defer s.Stop()

	assert.NotPanics(t, func() { s.Cancel("never-scheduled") })
}

func TestReminderSchedulerStop(t *testing.T) {
	s := NewReminderScheduler()

	var fired atomic.Int32
	s.Schedule("sender-1", 20*time.Millisecond, func() { fired.Add(1) })
	s.Schedule("sender-2", 20*time.Millisecond, func() { fired.Add(1) })
	s.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	// Scheduling after Stop is a no-op.
	s.Schedule("sender-3", time.Millisecond, func() { fired.Add(1) })
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 0, s.Pending())
}
