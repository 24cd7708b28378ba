package parser

import "fmt"

// ParseError reports a log line that matched one of the event shapes but
// carried a field that is not a valid number. It aborts the whole parse.
type ParseError struct {
	// Line is the 1-based line number in the log.
	Line int
	// Text is the offending line without its trailing newline.
	Text string
	// Field names the field that failed to convert, e.g. "timestep".
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: invalid %s: %v: %q", e.Line, e.Field, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }
