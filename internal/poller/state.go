package poller

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle state of a poll session.
type State int

const (
	Idle State = iota
	Running
	Completed
	Failed
	TimedOut
	Cancelled
)

var stateNames = map[State]string{
	Idle:      "idle",
	Running:   "running",
	Completed: "completed",
	Failed:    "failed",
	TimedOut:  "timed_out",
	Cancelled: "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions can leave s.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == TimedOut || s == Cancelled
}

// ErrNotIdle is returned by Start on a session that already ran.
var ErrNotIdle = errors.New("poll session already started")

// MaxAttemptsLimit caps Config.MaxAttempts so a lossless subscription stays
// a bounded allocation.
const MaxAttemptsLimit = 10000

// Config bounds a poll session. A session reaches a terminal state within
// Interval * MaxAttempts plus fetch latency.
type Config struct {
	Interval    time.Duration // delay before each status check
	MaxAttempts int           // checks performed before giving up
}

// MaxEvents is the most events a session emits: the Running event from
// Start, one per check, and the terminal event replacing the last check's.
func (c Config) MaxEvents() int { return c.MaxAttempts + 1 }

// Validate checks that both bounds are positive and MaxAttempts is within
// MaxAttemptsLimit.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.Interval)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.MaxAttempts > MaxAttemptsLimit {
		return fmt.Errorf("max attempts must be at most %d, got %d", MaxAttemptsLimit, c.MaxAttempts)
	}
	return nil
}
