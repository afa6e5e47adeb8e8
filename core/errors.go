package core

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected marks an expected validation failure raised by a parser.
	// A rejection never aborts a conversation; it is surfaced to the
	// parameter's reaction hook instead.
	ErrRejected = errors.New("value rejected")

	// ErrSkillNotFound is returned when no skill is registered for an intent.
	ErrSkillNotFound = errors.New("skill not found")

	// ErrParameterNotFound is returned when a name queued in ToConfirm has no
	// matching parameter in the active skill.
	ErrParameterNotFound = errors.New("parameter not found")

	// ErrNoParent is returned when a sub conversation tries to return to a
	// parent context that does not exist.
	ErrNoParent = errors.New("no parent context")

	// ErrParentMismatch signals a corrupted sub-parameter stack.
	ErrParentMismatch = errors.New("parent parameter differs from confirming of parent context")

	// ErrInvalidIntentPostback is returned for intent postbacks without intent name.
	ErrInvalidIntentPostback = errors.New("intent postback without intent name")

	// ErrInvalidProcessParametersPostback is returned for process_parameters
	// postbacks without parameters.
	ErrInvalidProcessParametersPostback = errors.New("process parameters postback without parameters")

	// ErrMissingMessage is returned when a parameter must be collected but
	// declares no message.
	ErrMissingMessage = errors.New("message to confirm parameter not found")

	// ErrInvalidReplyToken is returned by messengers when the reply token of
	// an event expired or was already used.
	ErrInvalidReplyToken = errors.New("invalid reply token")

	// ErrUnknownMind is returned when a flow receives a mind result it cannot route.
	ErrUnknownMind = errors.New("mind is unknown")

	// ErrPushWithoutIntent is returned when a push event carries no intent.
	ErrPushWithoutIntent = errors.New("push event requires intent")

	// ErrNoAgent is returned when no intent classifier matches a channel.
	ErrNoAgent = errors.New("no intent classifier agent")

	// ErrNotCallable is returned when a registry key does not resolve to a function.
	ErrNotCallable = errors.New("not callable")
)

// RejectedError is the error parsers return for invalid user input. Code
// carries a stable identifier (be_parser__too_long, ...) suitable for
// choosing a corrective message.
type RejectedError struct {
	Code string
}

// Error implements error.
func (e *RejectedError) Error() string {
	if e.Code == "" {
		return ErrRejected.Error()
	}
	return fmt.Sprintf("%s: %s", ErrRejected.Error(), e.Code)
}

// Is makes errors.Is(err, ErrRejected) match any RejectedError.
func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// Reject builds a RejectedError with the given code.
func Reject(code string) error { return &RejectedError{Code: code} }

// RejectionCode extracts the code of a rejection, or "" when err is not one.
func RejectionCode(err error) string {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
