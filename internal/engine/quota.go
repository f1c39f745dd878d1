package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer counts Tasks dispatched by one RunUntilIdle call and
// enforces a maximum.
//
// A rule table whose completions keep re-raising its own events never
// quiesces; the quota turns that livelock into an error instead of a hang.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
func (q *QuotaEnforcer) Check() error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			Steps: q.current,
			Limit: q.maxSteps,
		}
	}
	return nil
}

// Reset resets the step counter to 0.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when RunUntilIdle exceeds its quota.
type StepsExceededError struct {
	Steps int
	Limit int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("loop did not quiesce: %d steps > %d limit", e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
