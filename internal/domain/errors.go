package domain

import (
	"errors"
	"fmt"
)

// Code is the machine-readable reason attached to every rejected command.
// Codes are part of the wire contract: they are sent verbatim to the
// offending connection and never broadcast.
type Code string

const (
	CodeTimeExpired         Code = "TIME_EXPIRED"
	CodeInvalidState        Code = "INVALID_STATE"
	CodeNotHost             Code = "NOT_HOST"
	CodeNotParticipant      Code = "NOT_PARTICIPANT"
	CodeInvalidQuestion     Code = "INVALID_QUESTION"
	CodeQuizNotActive       Code = "QUIZ_NOT_ACTIVE"
	CodeInvalidAccessCode   Code = "INVALID_ACCESS_CODE"
	CodeDuplicateSubmission Code = "DUPLICATE_SUBMISSION"
	CodeInvalidPayload      Code = "INVALID_PAYLOAD"
	CodeInternal            Code = "INTERNAL"
)

// Error pairs a wire code with human-readable text.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// E builds a coded error with a formatted message.
func E(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the wire code from err, falling back to INTERNAL for
// infrastructure failures so collaborator errors never leak details.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned for operations against quizzes with no
	// running session.
	ErrSessionNotFound = E(CodeQuizNotActive, "no running session for quiz")
	// ErrSessionExists rejects activating a quiz that is already live.
	ErrSessionExists = E(CodeInvalidState, "session already running for quiz")
)
