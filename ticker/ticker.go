// Package ticker defines an interface for a time.Ticker that can be
// replaced by a test-controlled implementation, so periodic work can be
// single-stepped in tests instead of waiting on a wall-clock interval. No
// other package in this module imports it.
package ticker

import "time"

// Ticker is satisfied by both a real time.Ticker and a mock used in unit
// tests that need deterministic control of when a tick is delivered.
type Ticker interface {
	// Ticks returns a channel that delivers ticks.
	Ticks() <-chan time.Time

	// Resume restarts the ticker from its last stopped point.
	Resume()

	// Stop halts delivery of new ticks.
	Stop()
}

// wrappedTicker wraps a time.Ticker so it satisfies the Ticker interface.
type wrappedTicker struct {
	*time.Ticker
	interval time.Duration
}

// New returns a Ticker backed by the standard library's time.Ticker, firing
// every interval.
func New(interval time.Duration) Ticker {
	return &wrappedTicker{
		Ticker:   time.NewTicker(interval),
		interval: interval,
	}
}

// Ticks returns a channel that delivers ticks.
//
// NOTE: Part of the Ticker interface.
func (t *wrappedTicker) Ticks() <-chan time.Time {
	return t.C
}

// Resume restarts the ticker from its last stopped point.
//
// NOTE: Part of the Ticker interface.
func (t *wrappedTicker) Resume() {
	t.Ticker.Reset(t.interval)
}

// Stop halts delivery of new ticks.
//
// NOTE: Part of the Ticker interface.
func (t *wrappedTicker) Stop() {
	t.Ticker.Stop()
}
