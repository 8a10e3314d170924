package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/tinyhis/regops/internal/client"
)

// Verdict is the result of one authorization check.
type Verdict int

const (
	// Pass is an HTTP 401/403 or an application refusal mentioning
	// permission.
	Pass Verdict = iota
	// PassUnconfirmed is an application refusal that does not say why, so
	// it may be a generic error rather than an authorization decision.
	PassUnconfirmed
	// Fail means the protected data came back.
	Fail
	// Unexpected is any other response; it counts as a failure.
	Unexpected
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "PASS"
	case PassUnconfirmed:
		return "PASS (unconfirmed)"
	case Fail:
		return "FAIL"
	case Unexpected:
		return "FAIL (unexpected)"
	default:
		return fmt.Sprintf("verdict-%d", int(v))
	}
}

func (v Verdict) Passed() bool {
	return v == Pass || v == PassUnconfirmed
}

var permissionMarkers = []string{"permission", "权限", "forbidden", "denied", "无权"}

// Check is one authorization probe and its verdict.
type Check struct {
	Name    string
	Verdict Verdict
	Detail  string
}

const (
	CheckForeignRecords = "patient reads another patient's records"
	CheckAdminListing   = "patient reads the admin user listing"
)

// CheckPermissions uses a's token to read b's medical records and the admin
// user listing. Both must be refused.
func (p *Prober) CheckPermissions(ctx context.Context, a, b User) []Check {
	asA := p.client.WithToken(a.Token)

	records, err := asA.PatientRecords(ctx, b.ID)
	v, detail := judge(records, err)
	checks := []Check{{Name: CheckForeignRecords, Verdict: v, Detail: detail}}

	users, err := asA.AdminUsers(ctx)
	v, detail = judge(users, err)
	return append(checks, Check{Name: CheckAdminListing, Verdict: v, Detail: detail})
}

func judge[T any](res *client.Result[T], err error) (Verdict, string) {
	if err != nil {
		return Unexpected, err.Error()
	}

	if res.Forbidden() {
		return Pass, fmt.Sprintf("HTTP %d", res.StatusCode)
	}
	if env := res.Envelope; env != nil && !env.OK() {
		if mentionsPermission(env.Message) {
			return Pass, fmt.Sprintf("app level permission (code %d): %s", env.Code, env.Message)
		}
		return PassUnconfirmed, fmt.Sprintf("app error (code %d): %s", env.Code, env.Message)
	}

	switch {
	case res.Envelope.OK():
		return Fail, fmt.Sprintf("app code 200; data: %s", snippet(string(res.Envelope.Data)))
	default:
		return Unexpected, fmt.Sprintf("status %d; body: %s", res.StatusCode, res.Snippet())
	}
}

func mentionsPermission(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range permissionMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func snippet(s string) string {
	const n = 256
	if len(s) > n {
		return s[:n]
	}
	return s
}
