package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the step a source failed in.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageParse   Stage = "parse"
	StageWrite   Stage = "write"
	StageCompile Stage = "compile"
)

// StageError is the error recorded on a failed SourceResult.
type StageError struct {
	Stage  Stage
	Source string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Source, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, source string, err error) error {
	return &StageError{Stage: stage, Source: source, Err: err}
}

// StageOf returns the failing stage of err, or "" if err is not a
// *StageError.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
