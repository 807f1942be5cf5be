package chrono

import (
	"context"
	"sync"
	"time"
)

// FakeTime is a manually driven TimeAPI. Sleep returns immediately after
// advancing the clock by the requested duration.
type FakeTime struct {
	mutex  sync.Mutex
	now    time.Time
	sleeps []time.Duration
	// OnSleep, if set, is called after every Sleep with the requested duration.
	OnSleep func(d time.Duration)
}

func NewFakeTime(start time.Time) *FakeTime {
	return &FakeTime{now: start}
}

func (f *FakeTime) Now() time.Time {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *FakeTime) Advance(d time.Duration) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.now = f.now.Add(d)
}

func (f *FakeTime) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mutex.Lock()
	f.sleeps = append(f.sleeps, d)
	if d > 0 {
		f.now = f.now.Add(d)
	}
	f.mutex.Unlock()

	if f.OnSleep != nil {
		f.OnSleep(d)
	}
	return ctx.Err()
}

// Sleeps returns every duration passed to Sleep, in order.
func (f *FakeTime) Sleeps() []time.Duration {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}
