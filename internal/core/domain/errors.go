package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAlreadyProcessing = errors.New("analysis already in progress")
	ErrBudgetExceeded    = errors.New("daily analysis budget exceeded")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrExtractionIO      = errors.New("document extraction failed")
	ErrModelTransient    = errors.New("transient model error")
	ErrModelFatal        = errors.New("fatal model error")
	ErrTemporary         = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// TerminalStatusForError maps a pipeline error to the terminal status the
// document should land in for this run.
func TerminalStatusForError(err error) DocumentStatus {
	switch {
	case IsKind(err, ErrUnsupportedFormat), IsKind(err, ErrExtractionIO):
		return StatusExtractionFailed
	default:
		return StatusFailed
	}
}
