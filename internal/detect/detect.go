// Package detect classifies a poll result against the previously stored
// content and computes line diffs. It has no side effects.
package detect

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"pagewatch/internal/model"
)

// diffContext is the number of unchanged lines grouped around each change.
const diffContext = 3

// Result is the outcome of Classify.
type Result struct {
	Event model.Event
	// Diff holds "-" and "+" lines for EventChanged.
	Diff []string
}

// NeedsFallback reports a change whose line diff came out empty, for
// example when only line endings differ. Callers must then present the
// previous and current content instead of the diff.
func (r Result) NeedsFallback() bool {
	return r.Event == model.EventChanged && len(r.Diff) == 0
}

// Classify compares current with previous. A nil previous means the target
// has never been extracted successfully.
func Classify(previous *string, current string) Result {
	switch {
	case previous == nil:
		return Result{Event: model.EventInitial}
	case *previous == current:
		return Result{Event: model.EventUnchanged}
	default:
		return Result{Event: model.EventChanged, Diff: Diff(*previous, current)}
	}
}

// Diff returns the removed and added lines between two texts, hunk by hunk,
// with removals before additions inside each hunk.
func Diff(previous, current string) []string {
	a, b := SplitLines(previous), SplitLines(current)
	var out []string
	for _, group := range difflib.NewMatcher(a, b).GetGroupedOpCodes(diffContext) {
		for _, op := range group {
			if op.Tag == 'r' || op.Tag == 'd' {
				for _, line := range a[op.I1:op.I2] {
					out = append(out, "-"+line)
				}
			}
			if op.Tag == 'r' || op.Tag == 'i' {
				for _, line := range b[op.J1:op.J2] {
					out = append(out, "+"+line)
				}
			}
		}
	}
	return out
}

// SplitLines splits s on \n, \r\n and \r. A trailing line break does not
// produce a final empty line, and an empty string has no lines.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
