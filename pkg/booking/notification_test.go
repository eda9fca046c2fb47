package booking

import (
	"errors"
	"strings"
	"testing"
)

func TestEmitNotificationTemplates(test *testing.T) {
	test.Parallel()
	userID := mustUserID(test, defaultOwnerLabel)
	reservationID := mustReservationID(test, "RES-ABC")
	testCases := []struct {
		status ReservationStatus
		title  string
	}{
		{status: ReservationStatusPending, title: "Reservation Pending"},
		{status: ReservationStatusConfirmed, title: "Reservation Confirmed"},
		{status: ReservationStatusCancelled, title: "Reservation Cancelled"},
		{status: ReservationStatusCompleted, title: "Reservation Completed"},
		{status: ReservationStatusNoShow, title: "Reservation Marked as No-Show"},
	}
	for _, testCase := range testCases {
		notification, err := EmitNotification(userID, reservationID, reservationID.String(), testCase.status, fixedNowUnixUTC)
		if err != nil {
			test.Fatalf("emit %s: %v", testCase.status, err)
		}
		if notification.Title() != testCase.title {
			test.Fatalf(errorMismatchMessage, testCase.title, notification.Title())
		}
		if !strings.Contains(notification.Message(), "RES-ABC") {
			test.Fatalf("expected message to name the reference, got %q", notification.Message())
		}
		if notification.Read() || notification.Status() != testCase.status || notification.Type() != NotificationTypeReservationStatus {
			test.Fatalf("unexpected notification: %+v", notification.attributes)
		}
		if notification.UserID() != userID || notification.CreatedUnixUTC() != fixedNowUnixUTC {
			test.Fatalf("unexpected notification owner or timestamp: %+v", notification.attributes)
		}
	}
}

func TestEmitNotificationRejectsUnknownStatus(test *testing.T) {
	test.Parallel()
	_, err := EmitNotification(mustUserID(test, defaultOwnerLabel), mustReservationID(test, "RES-X"), "RES-X", ReservationStatus("seated"), fixedNowUnixUTC)
	if !errors.Is(err, ErrInvalidStatus) {
		test.Fatalf(errorMismatchMessage, ErrInvalidStatus, err)
	}
}

func TestNewNotificationValidation(test *testing.T) {
	test.Parallel()
	valid := NotificationAttributes{
		UserID:          mustUserID(test, defaultOwnerLabel),
		Type:            NotificationTypeReservationStatus,
		ReservationID:   mustReservationID(test, "RES-N"),
		ReferenceNumber: "RES-N",
		Title:           "title",
		Message:         "message",
		Status:          ReservationStatusConfirmed,
	}
	if _, err := NewNotification(valid); err != nil {
		test.Fatalf("valid notification: %v", err)
	}
	missingReference := valid
	missingReference.ReferenceNumber = " "
	if _, err := NewNotification(missingReference); !errors.Is(err, ErrInvalidNotification) {
		test.Fatalf(errorMismatchMessage, ErrInvalidNotification, err)
	}
	missingUser := valid
	missingUser.UserID = UserID{}
	if _, err := NewNotification(missingUser); !errors.Is(err, ErrValidation) {
		test.Fatalf(errorMismatchMessage, ErrValidation, err)
	}
}
