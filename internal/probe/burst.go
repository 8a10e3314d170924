package probe

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/tinyhis/regops/internal/api"
	"github.com/tinyhis/regops/internal/client"
)

// BookFunc issues one booking request on behalf of u.
type BookFunc func(ctx context.Context, u User, scheduleID int64) (*client.Result[api.Registration], error)

// Attempt is one worker's booking and how long the request took.
type Attempt struct {
	User    User
	Outcome Outcome
	Elapsed time.Duration
}

// Burst books scheduleID once per user, all at the same moment. Every
// worker waits at a start gate until all have been spawned. Results are
// read only after every worker has returned and come back in user order.
func Burst(ctx context.Context, users []User, scheduleID int64, book BookFunc) []Attempt {
	gate := make(chan struct{})
	var ready sync.WaitGroup
	ready.Add(len(users))

	p := pool.NewWithResults[Attempt]()
	for _, u := range users {
		u := u
		p.Go(func() Attempt {
			ready.Done()
			<-gate
			start := time.Now()
			res, err := book(ctx, u, scheduleID)
			return Attempt{User: u, Outcome: Classify(res, err), Elapsed: time.Since(start)}
		})
	}
	ready.Wait()
	close(gate)

	attempts := p.Wait()
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].User.Index < attempts[j].User.Index
	})
	return attempts
}

// Successes counts booked attempts.
func Successes(attempts []Attempt) int {
	n := 0
	for _, a := range attempts {
		if a.Outcome.Success() {
			n++
		}
	}
	return n
}
