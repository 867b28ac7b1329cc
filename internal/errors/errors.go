// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// SendReason classifies why a single send did not go through.
type SendReason string

const (
	ReasonNotReady         SendReason = "not_ready"
	ReasonInvalidRecipient SendReason = "invalid_recipient"
	ReasonExternalFailure  SendReason = "external_failure"
)

var (
	ErrAlreadyRunning  = errors.New("a campaign is already running")
	ErrEmptyRecipients = errors.New("recipient list is empty")
)

// SendError is returned by every sender. It never hides the underlying failure.
type SendError struct {
	Reason SendReason
	Phone  string
	Err    error
}

func (e *SendError) Error() string {
	switch {
	case e.Reason == ReasonNotReady:
		return "not ready"
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	default:
		return string(e.Reason)
	}
}

func (e *SendError) Unwrap() error {
	return e.Err
}

func NewNotReady(phone string) error {
	return &SendError{Reason: ReasonNotReady, Phone: phone}
}

func NewInvalidRecipient(phone string, err error) error {
	return &SendError{Reason: ReasonInvalidRecipient, Phone: phone, Err: err}
}

func NewExternalFailure(phone string, err error) error {
	return &SendError{Reason: ReasonExternalFailure, Phone: phone, Err: err}
}

// ReasonOf returns the SendReason carried by err, or ReasonExternalFailure for
// any error that is not a SendError.
func ReasonOf(err error) SendReason {
	var se *SendError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ReasonExternalFailure
}

func IsNotReady(err error) bool {
	return err != nil && ReasonOf(err) == ReasonNotReady
}

func IsInvalidRecipient(err error) bool {
	return err != nil && ReasonOf(err) == ReasonInvalidRecipient
}
