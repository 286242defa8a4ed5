package reservation

import "time"

// TimerHandle is a one-shot scheduled callback. Stop is safe to call
// after the callback has fired or after a previous Stop.
type TimerHandle interface {
	Stop() bool
}

// Scheduler schedules deferred auto-cancel callbacks. It is injected so
// tests can fire timers deterministically instead of sleeping.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) TimerHandle
}

type timerScheduler struct{}

// NewScheduler returns the production scheduler backed by time.AfterFunc.
func NewScheduler() Scheduler { return timerScheduler{} }

func (timerScheduler) Schedule(d time.Duration, fn func()) TimerHandle {
	return time.AfterFunc(d, fn)
}
