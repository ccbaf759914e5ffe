package clock

import "time"

// Clock is the source of "now" for expiry checks and default lifetimes.
// Services never call time.Now directly.
type Clock interface {
	Now() time.Time
}
