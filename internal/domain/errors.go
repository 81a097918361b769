package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthRequired is returned when an operation needs a signed-in user.
	ErrAuthRequired = errors.New("you must be logged in")
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrUserNotFound is returned when a user profile cannot be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrNetwork wraps failures talking to the store or an upstream provider.
	ErrNetwork = errors.New("upstream unavailable")
	// ErrCorruptRecord is returned when a stored record does not decode into a valid shape.
	ErrCorruptRecord = errors.New("corrupt record")
	// ErrInvalidCredentials is returned when sign in fails.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when signing up with an email that already has an account.
	ErrEmailTaken = errors.New("email already registered")
)

// ValidationError reports missing or invalid fields. It blocks submission and is reported inline.
type ValidationError struct {
	Fields []string
	Reason string
}

// Error reads as a missing-fields prompt when only Fields is set and as an invalid-field report when
// Reason is set.
func (e *ValidationError) Error() string {
	switch {
	case e.Reason == "":
		return "please fill in all required fields: " + strings.Join(e.Fields, ", ")
	case len(e.Fields) == 0:
		return e.Reason
	default:
		return "invalid " + strings.Join(e.Fields, ", ") + ": " + e.Reason
	}
}

// Network wraps err so that errors.Is(err, ErrNetwork) holds while keeping the original message.
func Network(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}
