package booking

import (
	"errors"
	"testing"
)

func TestValidateTransition(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		from        ReservationStatus
		to          ReservationStatus
		changed     bool
		expectedErr error
	}{
		{from: ReservationStatusPending, to: ReservationStatusConfirmed, changed: true},
		{from: ReservationStatusPending, to: ReservationStatusCancelled, changed: true},
		{from: ReservationStatusPending, to: ReservationStatusCompleted, changed: true},
		{from: ReservationStatusPending, to: ReservationStatusNoShow, changed: true},
		{from: ReservationStatusConfirmed, to: ReservationStatusCompleted, changed: true},
		{from: ReservationStatusConfirmed, to: ReservationStatusCancelled, changed: true},
		{from: ReservationStatusPending, to: ReservationStatusPending},
		{from: ReservationStatusConfirmed, to: ReservationStatusConfirmed},
		{from: ReservationStatusConfirmed, to: ReservationStatusPending, expectedErr: ErrInvalidTransition},
		{from: ReservationStatusCancelled, to: ReservationStatusConfirmed, expectedErr: ErrInvalidTransition},
		{from: ReservationStatusCancelled, to: ReservationStatusCancelled, expectedErr: ErrInvalidTransition},
		{from: ReservationStatusCompleted, to: ReservationStatusNoShow, expectedErr: ErrInvalidTransition},
		{from: ReservationStatusNoShow, to: ReservationStatusPending, expectedErr: ErrInvalidTransition},
		{from: ReservationStatusPending, to: ReservationStatus("seated"), expectedErr: ErrInvalidStatus},
		{from: ReservationStatus("Pending"), to: ReservationStatusConfirmed, expectedErr: ErrInvalidStatus},
		{from: ReservationStatusPending, to: ReservationStatus(" confirmed"), expectedErr: ErrInvalidStatus},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(string(testCase.from)+"->"+string(testCase.to), func(test *testing.T) {
			test.Parallel()
			changed, err := ValidateTransition(testCase.from, testCase.to)
			if testCase.expectedErr != nil {
				if !errors.Is(err, testCase.expectedErr) {
					test.Fatalf(errorMismatchMessage, testCase.expectedErr, err)
				}
				return
			}
			if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}
			if changed != testCase.changed {
				test.Fatalf(errorMismatchMessage, testCase.changed, changed)
			}
		})
	}
}

func TestTransitionErrorCarriesStatuses(test *testing.T) {
	test.Parallel()
	_, err := ValidateTransition(ReservationStatusCompleted, ReservationStatusCancelled)
	var transitionError *TransitionError
	if !errors.As(err, &transitionError) {
		test.Fatalf("expected TransitionError, got %T", err)
	}
	if transitionError.From != ReservationStatusCompleted || transitionError.To != ReservationStatusCancelled {
		test.Fatalf("unexpected transition error: %+v", transitionError)
	}
}

func TestTransitionStampsCancellationAndVersion(test *testing.T) {
	test.Parallel()
	reservation := mustReservation(test, reservationFixture{id: "RES-T1", version: 3})
	cancelled, err := reservation.transition(ReservationStatusCancelled, fixedNowUnixUTC+60)
	if err != nil {
		test.Fatalf("transition: %v", err)
	}
	if cancelled.CancelledAtUnixUTC() != fixedNowUnixUTC+60 {
		test.Fatalf(errorMismatchMessage, fixedNowUnixUTC+60, cancelled.CancelledAtUnixUTC())
	}
	if cancelled.Version() != 4 {
		test.Fatalf(errorMismatchMessage, 4, cancelled.Version())
	}
	if reservation.Status() != ReservationStatusPending {
		test.Fatalf("expected original reservation to stay pending")
	}
}
