package tally

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableOrdering(t *testing.T) {
	tb := New()
	tb.Add("HTTP 500 boom")
	tb.Add("expired")
	tb.Add("expired")
	tb.Add("quota")
	tb.Add("expired")
	tb.Add("quota")

	assert.Equal(t, 3, tb.Len())
	assert.Equal(t, 2, tb.Count("quota"))
	assert.Equal(t, []Entry{
		{"expired", 3},
		{"quota", 2},
		{"HTTP 500 boom", 1},
	}, tb.Entries())
}

func TestTableWrite(t *testing.T) {
	var buf bytes.Buffer
	New().Write(&buf, "Failure reasons")
	assert.Empty(t, buf.String())

	tb := New()
	tb.Add("already cancelled")
	tb.Add("already cancelled")
	tb.Write(&buf, "Failure reasons")
	assert.Equal(t, "\nFailure reasons:\n  2x -> already cancelled\n", buf.String())
}
