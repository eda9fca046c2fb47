package booking

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the booking service.
var (
	ErrValidation          = errors.New("validation failed")
	ErrSlotConflict        = errors.New("slot conflict")
	ErrUnknownReservation  = errors.New("unknown reservation")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrStaleWrite          = errors.New("stale write")
	ErrForbidden           = errors.New("forbidden")
	ErrReservationExists   = errors.New("reservation already exists")
	ErrUnknownNotification = errors.New("unknown notification")
	ErrTransactionTimeout  = errors.New("transaction timeout")

	ErrInvalidUserID          = fmt.Errorf("%w: invalid user id", ErrValidation)
	ErrInvalidReservationID   = fmt.Errorf("%w: invalid reservation id", ErrValidation)
	ErrInvalidResourceID      = fmt.Errorf("%w: invalid resource id", ErrValidation)
	ErrInvalidNotificationID  = fmt.Errorf("%w: invalid notification id", ErrValidation)
	ErrInvalidExternalEventID = fmt.Errorf("%w: invalid external event id", ErrValidation)
	ErrInvalidTimeSlot        = fmt.Errorf("%w: invalid time slot", ErrValidation)
	ErrInvalidPartySize       = fmt.Errorf("%w: invalid party size", ErrValidation)
	ErrInvalidBookingDate     = fmt.Errorf("%w: invalid booking date", ErrValidation)
	ErrInvalidCustomer        = fmt.Errorf("%w: invalid customer", ErrValidation)
	ErrInvalidSpecialRequest  = fmt.Errorf("%w: invalid special request", ErrValidation)
	ErrInvalidStatus          = fmt.Errorf("%w: invalid reservation status", ErrValidation)
	ErrInvalidVersion         = fmt.Errorf("%w: invalid version", ErrValidation)
	ErrInvalidCancellation    = fmt.Errorf("%w: cancellation timestamp mismatch", ErrValidation)
	ErrInvalidRole            = fmt.Errorf("%w: invalid role", ErrValidation)
	ErrInvalidNotification    = fmt.Errorf("%w: invalid notification", ErrValidation)
	ErrEmptyPatch             = fmt.Errorf("%w: patch has no fields", ErrValidation)
	ErrInvalidServiceConfig   = errors.New("invalid service config")
)

// ConflictError reports the reservation already holding a requested slot.
type ConflictError struct {
	ReservationID ReservationID
	Status        ReservationStatus
	CustomerName  string
	Date          BookingDate
	Slot          TimeSlot
}

// Error returns the formatted error message.
func (conflictError *ConflictError) Error() string {
	return fmt.Sprintf("%v: %s %s already held by %s (%s)", ErrSlotConflict, conflictError.Date.String(), conflictError.Slot.String(), conflictError.ReservationID.String(), conflictError.Status)
}

// Is reports ErrSlotConflict equivalence.
func (conflictError *ConflictError) Is(target error) bool {
	return target == ErrSlotConflict
}

func newConflictError(reservation Reservation) *ConflictError {
	return &ConflictError{
		ReservationID: reservation.ReservationID(),
		Status:        reservation.Status(),
		CustomerName:  reservation.Customer().Name(),
		Date:          reservation.Date(),
		Slot:          reservation.Slot(),
	}
}

// TransitionError describes a rejected lifecycle move.
type TransitionError struct {
	From ReservationStatus
	To   ReservationStatus
}

// Error returns the formatted error message.
func (transitionError *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", ErrInvalidTransition, transitionError.From, transitionError.To)
}

// Is reports ErrInvalidTransition equivalence.
func (transitionError *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
