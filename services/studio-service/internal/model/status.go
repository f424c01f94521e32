package model

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCheckedIn Status = "checked_in"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "pending"
	PaymentDepositPaid PaymentStatus = "deposit_paid"
	PaymentFullyPaid   PaymentStatus = "fully_paid"
	PaymentCancelled   PaymentStatus = "cancelled"
)

var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError names the field and the rejected edge.
type TransitionError struct {
	Field string
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %q to %q", e.Field, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var statusEdges = map[Status][]Status{
	StatusScheduled: {StatusCheckedIn, StatusCancelled},
	StatusCheckedIn: {StatusCancelled},
}

// Cancellation is the only way into PaymentCancelled.
var paymentEdges = map[PaymentStatus][]PaymentStatus{
	PaymentPending:     {PaymentDepositPaid, PaymentFullyPaid, PaymentCancelled},
	PaymentDepositPaid: {PaymentFullyPaid, PaymentCancelled},
	PaymentFullyPaid:   {PaymentCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCheckedIn, StatusCancelled:
		return true
	}
	return false
}

func (s Status) CanTransition(to Status) error {
	for _, next := range statusEdges[s] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{Field: "status", From: string(s), To: string(to)}
}

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentDepositPaid, PaymentFullyPaid, PaymentCancelled:
		return true
	}
	return false
}

func (p PaymentStatus) CanTransition(to PaymentStatus) error {
	for _, next := range paymentEdges[p] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{Field: "payment_status", From: string(p), To: string(to)}
}

// StatusSources lists the states that may move to to. Stores use it as the
// precondition of their conditional updates.
func StatusSources(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusScheduled, StatusCheckedIn, StatusCancelled} {
		if from.CanTransition(to) == nil {
			out = append(out, from)
		}
	}
	return out
}

func PaymentSources(to PaymentStatus) []PaymentStatus {
	var out []PaymentStatus
	for _, from := range []PaymentStatus{PaymentPending, PaymentDepositPaid, PaymentFullyPaid, PaymentCancelled} {
		if from.CanTransition(to) == nil {
			out = append(out, from)
		}
	}
	return out
}

// InitialPaymentStatus is the payment state a booking starts in.
func InitialPaymentStatus(depositPaid bool) PaymentStatus {
	if depositPaid {
		return PaymentDepositPaid
	}
	return PaymentPending
}
