package clock

import (
	"sync"
	"time"
)

// Clock is the time source for TTL checks.
type Clock interface {
	Now() time.Time
}

// Real returns the wall clock in UTC.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Fake is a controllable clock for tests. It is safe for concurrent use
// because cache reads happen from several source pipelines at once.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
