// Package prompt dispatches device output lines to handlers by prefix.
package prompt

import (
	"context"
	"io"
	"strings"
)

// Handler answers a matched prompt. S is the session state threaded through
// every transition; w is the device to answer on.
type Handler[S any] func(ctx context.Context, s S, w io.Writer) error

// Rule binds a literal line prefix to a handler.
type Rule[S any] struct {
	Prefix string
	Handle Handler[S]
}

// Table is an ordered list of rules. Rules are evaluated in order and the
// first match wins. Matching is case-sensitive and anchored at the start of
// the line.
type Table[S any] []Rule[S]

// Match returns the first rule whose prefix starts line.
func (t Table[S]) Match(line string) (Rule[S], bool) {
	for _, rule := range t {
		if strings.HasPrefix(line, rule.Prefix) {
			return rule, true
		}
	}
	return Rule[S]{}, false
}

// Dispatch runs the handler of the first rule matching line. It reports
// whether a rule matched; unmatched lines are not an error.
func (t Table[S]) Dispatch(ctx context.Context, s S, w io.Writer, line string) (bool, error) {
	rule, ok := t.Match(line)
	if !ok {
		return false, nil
	}
	return true, rule.Handle(ctx, s, w)
}
