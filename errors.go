package questionbank

import (
	"errors"
	"fmt"
)

// ValidationCode identifies which local rule a draft violated
type ValidationCode string

const (
	EmptyQuestionText   ValidationCode = "EmptyQuestionText"
	EmptyOptionText     ValidationCode = "EmptyOptionText"
	InvalidCorrectCount ValidationCode = "InvalidCorrectCount"
	EmptyCategories     ValidationCode = "EmptyCategories"
	EmptyBankName       ValidationCode = "EmptyBankName"
)

var validationMessages = map[ValidationCode]string{
	EmptyQuestionText:   "Question text is required.",
	EmptyOptionText:     "All options must have text.",
	InvalidCorrectCount: "Select the correct answer.",
	EmptyCategories:     "Select at least one category.",
	EmptyBankName:       "Question bank name is required.",
}

// ValidationError is a locally detected problem with a draft. It always
// blocks submission and never reaches the store.
type ValidationError struct {
	Code ValidationCode
}

func (e *ValidationError) Error() string {
	if msg, ok := validationMessages[e.Code]; ok {
		return msg
	}
	return string(e.Code)
}

func newValidationError(code ValidationCode) error {
	return &ValidationError{Code: code}
}

// ErrNoChanges signals that an edit produced an empty patch. It is not a
// failure; callers decide whether to show a message or do nothing.
var ErrNoChanges = errors.New("no changes detected")

// ErrBusy is returned when a call is attempted while another one from the
// same editing session is still outstanding.
var ErrBusy = errors.New("another operation is in progress")

// ErrNotFound is returned by stores for unknown IDs
var ErrNotFound = errors.New("not found")

// ErrSourceTypeImmutable is returned when an edit tries to change a bank's source type
var ErrSourceTypeImmutable = errors.New("question bank source type cannot be changed")

// GenericErrorMessage is shown when a failure carries no server message
const GenericErrorMessage = "Something went wrong. Please try again."

// ExternalError wraps a persistence or network failure
type ExternalError struct {
	Op            string
	ServerMessage string
	Err           error
}

func (e *ExternalError) Error() string {
	if e.ServerMessage != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.ServerMessage)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// ServerMessager is implemented by store errors that carry a message meant for the user
type ServerMessager interface {
	ServerMessage() string
}

// wrapExternal converts a store failure into an ExternalError. Local errors
// (validation, no-changes, busy) pass through untouched.
func wrapExternal(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var ee *ExternalError
	if errors.As(err, &ve) || errors.As(err, &ee) || errors.Is(err, ErrNoChanges) || errors.Is(err, ErrBusy) {
		return err
	}
	ext := &ExternalError{Op: op, Err: err}
	var sm ServerMessager
	if errors.As(err, &sm) {
		ext.ServerMessage = sm.ServerMessage()
	}
	return ext
}

// UserMessage formats any error from this package for display
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	if errors.Is(err, ErrNoChanges) {
		return "No changes detected."
	}
	if errors.Is(err, ErrBusy) {
		return "Please wait for the current operation to finish."
	}
	if errors.Is(err, ErrSourceTypeImmutable) {
		return "The source type of a question bank cannot be changed."
	}
	var ee *ExternalError
	if errors.As(err, &ee) && ee.ServerMessage != "" {
		return ee.ServerMessage
	}
	return GenericErrorMessage
}
