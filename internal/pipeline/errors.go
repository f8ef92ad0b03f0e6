package pipeline

import (
	"errors"
	"fmt"
)

// Failure kinds. A failed session's error matches exactly one of them with
// errors.Is. Per-frame classification failures never appear here.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrMediaDecode     = errors.New("media decode error")
	ErrAudioExtraction = errors.New("audio extraction error")
	ErrTranscription   = errors.New("transcription error")
	ErrFeedbackService = errors.New("feedback service error")
	ErrAbandoned       = errors.New("session abandoned")
	ErrInternal        = errors.New("internal pipeline error")

	ErrAlreadyRun = errors.New("pipeline: session has already been run")
)

// StageError is why a session ended in Failed.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage.Title(), e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage.Title(), e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Cause is the underlying error text, or the kind when there is none.
func (e *StageError) Cause() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}
