package domain

import "errors"

var (
	// ErrUnsupportedMessage is raised when outbound tagging reaches a
	// message variant it does not understand. Surfaced as a hard fault so
	// integration gaps show up early.
	ErrUnsupportedMessage = errors.New("unsupported message type")

	// ErrInvalidInterval rejects a negative lookup timeout at setter time.
	ErrInvalidInterval = errors.New("interval must not be negative")

	// ErrNonExistSubscription is attached to the reply for an unsubscribe
	// that references no live subscription.
	ErrNonExistSubscription = errors.New("subscription does not exist")
)
