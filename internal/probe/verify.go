package probe

import "github.com/tinyhis/regops/internal/api"

// Verification compares the schedule before and after the burst with what
// the clients observed.
type Verification struct {
	Before    api.Schedule
	After     *api.Schedule // nil when the schedule vanished from the list
	Attempts  int
	Successes int
	Failures  int
	Delta     int

	// Oversold is set when more bookings succeeded than quota was left.
	Oversold bool
	// CountMismatch is set when the counter moved by a different amount
	// than the number of observed successes.
	CountMismatch bool
}

func Verify(before api.Schedule, after *api.Schedule, attempts []Attempt) Verification {
	v := Verification{
		Before:    before,
		After:     after,
		Attempts:  len(attempts),
		Successes: Successes(attempts),
	}
	v.Failures = v.Attempts - v.Successes
	v.Oversold = v.Successes > before.QuotaLeft
	if after != nil {
		v.Delta = after.CurrentCount - before.CurrentCount
		v.CountMismatch = v.Delta != v.Successes
	}
	return v
}

// MinFailures is how many attempts had to fail given the quota.
func (v Verification) MinFailures() int {
	return max(0, v.Attempts-v.Before.QuotaLeft)
}

func (v Verification) Vanished() bool {
	return v.After == nil
}

// OK reports whether every quota invariant held.
func (v Verification) OK() bool {
	return !v.Oversold && !v.CountMismatch && !v.Vanished()
}
