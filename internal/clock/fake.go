package clock

import "time"

// FakeClock pins Now to a fixed instant so sweeps and penalty math can
// be walked across days in tests. Not safe for concurrent Advance.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward, never back. Schedulers under test
// assume time is monotone.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
