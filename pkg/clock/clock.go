package clock

import "time"

// Clock supplies the current time. The engine never calls time.Now directly so
// tests can pin the clock.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed always returns the same instant. Advance it explicitly in tests.
type Fixed struct {
	T time.Time
}

func NewFixed(t time.Time) *Fixed { return &Fixed{T: t} }

func (f *Fixed) Now() time.Time { return f.T }

// Advance moves the fixed clock forward by d and returns the new time.
func (f *Fixed) Advance(d time.Duration) time.Time {
	f.T = f.T.Add(d)
	return f.T
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
