// Package clock abstracts time for components that need testable pacing.
package clock

import "time"

// Clock supplies the current time. The rate limiter, circuit breakers and
// the search cache all read time through this seam so tests can pin it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// System returns a Clock backed by time.Now.
func System() Clock {
	return systemClock{}
}

// Now returns the current time in UTC.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
