package session

import (
	"github.com/pkg/errors"
)

type Reason string

const (
	ReasonAlreadyRegistered  Reason = "already-registered"
	ReasonNotFound           Reason = "not-found"
	ReasonInvalidCredentials Reason = "invalid-credentials"
	ReasonInvalidEmail       Reason = "invalid-email"
	ReasonWeakPassword       Reason = "weak-password"
	ReasonNotGmail           Reason = "not-gmail"
	ReasonNotSignedIn        Reason = "not-signed-in"
	ReasonOther              Reason = "other"
)

const genericMessage = "Something went wrong. Please try again."

var messages = map[Reason]string{
	ReasonAlreadyRegistered:  "An account with this email already exists.",
	ReasonNotFound:           "No account was found for this email.",
	ReasonInvalidCredentials: "The email or password is incorrect.",
	ReasonInvalidEmail:       "Please enter a valid email address.",
	ReasonWeakPassword:       "Password should be at least 6 characters.",
	ReasonNotGmail:           "Only Gmail accounts are allowed. Please use a valid Gmail address.",
	ReasonNotSignedIn:        "You must be signed in.",
}

// Error is returned by every Provider operation that fails.
type Error struct {
	Reason Reason
	Err    error
}

func newError(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Reason) + ": " + e.Err.Error()
	}
	if msg, ok := messages[e.Reason]; ok {
		return msg
	}
	return string(e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf returns the reason carried by err, or ReasonOther.
func ReasonOf(err error) Reason {
	var sessionErr *Error
	if errors.As(err, &sessionErr) {
		return sessionErr.Reason
	}
	return ReasonOther
}

// Message turns err into text fit for a user. Unclassified errors get a
// generic message.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := messages[ReasonOf(err)]; ok {
		return msg
	}
	return genericMessage
}
