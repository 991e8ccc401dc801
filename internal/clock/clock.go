// Package clock lets the telemetry loop sleep against an injectable time source.
// Production code uses Real(); tests use Fake() and advance time explicitly.
package clock

import "time"

// Clock abstracts the two time operations the agent needs.
type Clock interface {
	Now() time.Time
	// After returns a channel that receives once d has elapsed. If d <= 0 it fires immediately.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
