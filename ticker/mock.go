package ticker

import "time"

// Mock is a Ticker whose ticks are driven explicitly by test code via
// Force, rather than by a wall-clock interval.
type Mock struct {
	ticks   chan time.Time
	stopped bool
}

// NewMock returns a Ticker that only ticks when Force is called.
func NewMock() *Mock {
	return &Mock{
		ticks: make(chan time.Time, 1),
	}
}

// Ticks returns a channel that delivers ticks.
//
// NOTE: Part of the Ticker interface.
func (m *Mock) Ticks() <-chan time.Time {
	return m.ticks
}

// Resume marks the mock ticker as accepting forced ticks again.
//
// NOTE: Part of the Ticker interface.
func (m *Mock) Resume() {
	m.stopped = false
}

// Stop halts delivery of new ticks.
//
// NOTE: Part of the Ticker interface.
func (m *Mock) Stop() {
	m.stopped = true
}

// Force delivers a single tick at the given time, unless the mock has been
// stopped.
func (m *Mock) Force(t time.Time) {
	if m.stopped {
		return
	}
	m.ticks <- t
}
