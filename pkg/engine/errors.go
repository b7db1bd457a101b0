package engine

import (
	"errors"
	"fmt"
)

// ErrNoInstructions is wrapped by SubmissionError when Execute is called
// with an empty instruction list.
var ErrNoInstructions = errors.New("engine: no instructions submitted")

// ErrInvalidInstruction is wrapped by SubmissionError when the submitted
// list contains a nil instruction.
var ErrInvalidInstruction = errors.New("engine: invalid instruction in submitted list")

// ErrNoActiveSegment is returned by AppendRecord when called outside of a
// worker process started with UseSHM.
var ErrNoActiveSegment = errors.New("engine: no active shared segment in this process")

// SubmissionError is the uniform non-zero failure Execute returns for a bad
// submission, as opposed to a failure that happened mid-run. Callers can
// match the wrapped sentinel with errors.Is or just log Error().
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("engine: submission rejected: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
