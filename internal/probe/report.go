package probe

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/tinyhis/regops/internal/tally"
)

var (
	passColor = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
)

// Reasons builds the failure table of a burst.
func Reasons(attempts []Attempt) *tally.Table {
	t := tally.New()
	for _, a := range attempts {
		if !a.Outcome.Success() {
			t.Add(a.Outcome.Reason)
		}
	}
	return t
}

func (r *Report) Write(w io.Writer) {
	fmt.Fprintf(w, "Using BASE_URL: %s\n", r.BaseURL)
	if r.Demo != nil && r.Demo.IsDemo {
		fmt.Fprintln(w, "Backend reports demo mode")
	}

	t := r.Target
	if t.Substituted {
		fmt.Fprintf(w, "Schedule %d is expired; using ER schedule %d instead\n", t.RequestedID, t.Schedule.ScheduleID)
	}
	fmt.Fprintf(w, "Using dept %d, schedule %d (%s)\n", t.DeptID, t.Schedule.ScheduleID, t.Schedule.ShiftCode())

	v := r.Verify
	fmt.Fprintf(w, "Schedule before: currentCount=%d, maxQuota=%d\n", v.Before.CurrentCount, v.Before.MaxQuota)
	fmt.Fprintf(w, "Detected QUOTA (quotaLeft): %d, launching PATIENT_COUNT: %d\n", v.Before.QuotaLeft, r.Requested)
	fmt.Fprintf(w, "Prepared %d users\n", len(r.Users))

	fmt.Fprintln(w, "--- Test Summary ---")
	fmt.Fprintf(w, "Total attempts: %d, Success: %s, Fail: %d\n",
		v.Attempts, passColor.Sprint(v.Successes), v.Failures)
	fmt.Fprintf(w, "Expected failures: at least %d (attempts beyond quotaLeft %d)\n", v.MinFailures(), v.Before.QuotaLeft)
	if v.Vanished() {
		fmt.Fprintln(w, warnColor.Sprint("WARNING: schedule not found after test; could be removed or no longer visible"))
	} else {
		fmt.Fprintf(w, "Schedule after: currentCount=%d, maxQuota=%d (delta %d)\n",
			v.After.CurrentCount, v.After.MaxQuota, v.Delta)
	}
	if v.Oversold {
		fmt.Fprintln(w, failColor.Sprintf("OVERSOLD: %d successes with only %d left", v.Successes, v.Before.QuotaLeft))
	}
	if v.CountMismatch {
		fmt.Fprintln(w, failColor.Sprintf("COUNT MISMATCH: counter moved by %d, clients saw %d successes", v.Delta, v.Successes))
	}
	Reasons(r.Attempts).Write(w, "Failure reasons breakdown")

	fmt.Fprintln(w, "\n--- Starting Permission Test ---")
	if r.PermissionsSkipped() {
		fmt.Fprintln(w, "Not enough users to test permission behavior.")
		return
	}
	for _, c := range r.Checks {
		fmt.Fprintf(w, "%s: %s: %s\n", verdictColor(c.Verdict).Sprint(c.Verdict), c.Name, c.Detail)
	}
}

func verdictColor(v Verdict) *color.Color {
	switch v {
	case Pass:
		return passColor
	case PassUnconfirmed:
		return warnColor
	default:
		return failColor
	}
}
