package probe

import (
	"fmt"
	"strings"

	"github.com/tinyhis/regops/internal/api"
	"github.com/tinyhis/regops/internal/client"
)

// OutcomeKind classifies one booking attempt.
type OutcomeKind int

const (
	Booked OutcomeKind = iota
	// Expired is an application refusal whose message says the slot's
	// half-day has passed.
	Expired
	Rejected
	HTTPError
	TransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case Booked:
		return "booked"
	case Expired:
		return "expired"
	case Rejected:
		return "rejected"
	case HTTPError:
		return "http-error"
	case TransportError:
		return "transport-error"
	default:
		return fmt.Sprintf("outcome-%d", int(k))
	}
}

// ReasonExpired is the failure-table key for all expired refusals.
const ReasonExpired = "expired"

// The backend has no machine-readable code for an expired slot, so its
// messages are matched as a fallback.
var expiredMarkers = []string{"上午号源已过期", "下午号源已过期", "expired"}

type Outcome struct {
	Kind OutcomeKind
	// Reason is the failure-table key; empty for Booked.
	Reason       string
	Message      string
	Registration *api.Registration
}

func (o Outcome) Success() bool {
	return o.Kind == Booked
}

// Classify turns a booking response into an Outcome. Only HTTP 200 with
// envelope code 200 is a booking.
func Classify(res *client.Result[api.Registration], err error) Outcome {
	if err != nil {
		return Outcome{Kind: TransportError, Reason: err.Error()}
	}

	switch res.Kind {
	case client.KindSuccess:
		reg := res.Data
		return Outcome{Kind: Booked, Message: res.Message(), Registration: &reg}
	case client.KindHTTPError:
		return Outcome{Kind: HTTPError, Reason: fmt.Sprintf("HTTP %d: %s", res.StatusCode, res.Snippet())}
	}

	msg := res.Message()
	if isExpired(msg) {
		return Outcome{Kind: Expired, Reason: ReasonExpired, Message: msg}
	}
	reason := msg
	if reason == "" {
		reason = res.Err().Error()
	}
	return Outcome{Kind: Rejected, Reason: reason, Message: msg}
}

func isExpired(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range expiredMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
