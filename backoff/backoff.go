// Package backoff tracks the rate-limit cooldown window for the paid tier.
package backoff

import (
	"regexp"
	"strconv"
	"time"
)

// waitHintRe matches provider cooldown hints like "in 1h2m3s", "in 20s",
// "in 5m". Any subset of the three units may be present.
var waitHintRe = regexp.MustCompile(`in\s+(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?`)

// Controller holds a single resume-not-before timestamp and an exponentially
// growing retry interval. State is process-local and not persisted; a restart
// resets the schedule to the initial floor.
type Controller struct {
	resumeNotBefore time.Time
	nextInterval    time.Duration
	ceiling         time.Duration
	initial         time.Duration
	resetOnSuccess  bool
	now             func() time.Time // for testing
}

// New creates a controller with the given floor and ceiling, in seconds.
func New(initialSeconds, ceilingSeconds int) *Controller {
	initial := time.Duration(initialSeconds) * time.Second
	return &Controller{
		nextInterval: initial,
		initial:      initial,
		ceiling:      time.Duration(ceilingSeconds) * time.Second,
		now:          time.Now,
	}
}

// EnableResetOnSuccess makes a successful paid call reset the interval to the
// floor. Off by default: the documented behavior is that the interval only
// resets on process restart.
func (c *Controller) EnableResetOnSuccess() {
	c.resetOnSuccess = true
}

// InBackoff reports whether the paid tier is still inside its cooldown window.
func (c *Controller) InBackoff() bool {
	return !c.resumeNotBefore.IsZero() && c.resumeNotBefore.After(c.now())
}

// Remaining returns how long until the cooldown window elapses.
func (c *Controller) Remaining() time.Duration {
	if !c.InBackoff() {
		return 0
	}
	return c.resumeNotBefore.Sub(c.now())
}

// Apply records a rate-limit failure. hintSeconds, when > 0, is a
// provider-supplied cooldown that overrides the exponential schedule for this
// window; the schedule still doubles for the next failure either way.
func (c *Controller) Apply(hintSeconds int) {
	wait := c.nextInterval
	if hintSeconds > 0 {
		wait = time.Duration(hintSeconds) * time.Second
	}
	if wait < time.Second {
		wait = time.Second
	}

	c.resumeNotBefore = c.now().Add(wait)

	c.nextInterval *= 2
	if c.nextInterval > c.ceiling {
		c.nextInterval = c.ceiling
	}
}

// RecordSuccess clears the schedule when reset-on-success is enabled.
func (c *Controller) RecordSuccess() {
	if c.resetOnSuccess {
		c.nextInterval = c.initial
	}
}

// NextInterval exposes the current schedule value for observability.
func (c *Controller) NextInterval() time.Duration {
	return c.nextInterval
}

// ParseWaitHint extracts a whole-seconds cooldown from free-text provider
// error messages following the pattern "in <h>h<m>m<s>s". Returns 0 when no
// hint is present.
func ParseWaitHint(message string) int {
	m := waitHintRe.FindStringSubmatch(message)
	if m == nil {
		return 0
	}

	total := 0
	if m[1] != "" {
		h, err := strconv.Atoi(m[1])
		if err != nil {
			return 0
		}
		total += h * 3600
	}
	if m[2] != "" {
		min, err := strconv.Atoi(m[2])
		if err != nil {
			return 0
		}
		total += min * 60
	}
	if m[3] != "" {
		s, err := strconv.Atoi(m[3])
		if err != nil {
			return 0
		}
		total += s
	}
	return total
}
