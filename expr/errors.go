package expr

import (
	"strconv"
)

// Reason says why an evaluation failed.
type Reason int

const (
	// Malformed means the template couldn't be parsed.
	Malformed Reason = iota

	// Unresolved means a Strict evaluation found a path that
	// doesn't resolve to a non-null value.
	Unresolved
)

func (r Reason) String() string {
	switch r {
	case Malformed:
		return "malformed"
	case Unresolved:
		return "unresolved"
	default:
		return "reason(" + strconv.Itoa(int(r)) + ")"
	}
}

// EvaluationError reports a template that couldn't be parsed or (in
// Strict mode) a path that didn't resolve.
type EvaluationError struct {
	Reason Reason

	// Template is the whole template source.
	Template string

	// Expr is the placeholder body (if any) that caused the
	// problem.
	Expr string

	// Pos is the byte offset in Template.
	Pos int

	Msg string
}

func (e *EvaluationError) Error() string {
	s := "expression " + e.Reason.String()
	if e.Expr != "" {
		s += ` "` + e.Expr + `"`
	}
	s += " at " + strconv.Itoa(e.Pos)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
