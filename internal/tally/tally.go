// Package tally counts failure reasons for end-of-run summaries.
package tally

import (
	"fmt"
	"io"
	"sort"
)

// Entry is one reason and how often it was seen.
type Entry struct {
	Reason string
	Count  int
}

// Table is a frequency table keyed by reason. Not safe for concurrent use.
type Table struct {
	counts map[string]int
	order  []string
}

func New() *Table {
	return &Table{counts: make(map[string]int)}
}

func (t *Table) Add(reason string) {
	if _, seen := t.counts[reason]; !seen {
		t.order = append(t.order, reason)
	}
	t.counts[reason]++
}

// Count returns how often reason was added.
func (t *Table) Count(reason string) int {
	return t.counts[reason]
}

// Len returns the number of distinct reasons.
func (t *Table) Len() int {
	return len(t.order)
}

// Entries returns reasons by descending count; ties keep first-seen order.
func (t *Table) Entries() []Entry {
	entries := make([]Entry, 0, len(t.order))
	for _, r := range t.order {
		entries = append(entries, Entry{Reason: r, Count: t.counts[r]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	return entries
}

// Write prints the table as "  <n>x -> <reason>" lines under title.
// Nothing is written for an empty table.
func (t *Table) Write(w io.Writer, title string) {
	if t.Len() == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, e := range t.Entries() {
		fmt.Fprintf(w, "  %dx -> %s\n", e.Count, e.Reason)
	}
}
