package clock

import "time"

// SystemClock reads the wall clock in UTC, truncated to microseconds so that a value
// survives a round trip through a timestamptz column unchanged.
type SystemClock struct{}

func NewSystemClock() SystemClock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
