package booking

import (
	"fmt"
	"strings"
)

// NotificationType tags the kind of notification.
type NotificationType string

const NotificationTypeReservationStatus NotificationType = "reservation_status"

type notificationTemplate struct {
	title   string
	message string
}

var notificationTemplates = map[ReservationStatus]notificationTemplate{
	ReservationStatusPending: {
		title:   "Reservation Pending",
		message: "Your reservation %s is pending review.",
	},
	ReservationStatusConfirmed: {
		title:   "Reservation Confirmed",
		message: "Your reservation %s has been confirmed. We look forward to seeing you.",
	},
	ReservationStatusCancelled: {
		title:   "Reservation Cancelled",
		message: "Your reservation %s has been cancelled.",
	},
	ReservationStatusCompleted: {
		title:   "Reservation Completed",
		message: "Thank you for dining with us. Reservation %s is now complete.",
	},
	ReservationStatusNoShow: {
		title:   "Reservation Marked as No-Show",
		message: "Your reservation %s was marked as a no-show.",
	},
}

// NotificationAttributes carries every field of a notification for construction.
type NotificationAttributes struct {
	NotificationID  NotificationID
	UserID          UserID
	Type            NotificationType
	ReservationID   ReservationID
	ReferenceNumber string
	Title           string
	Message         string
	Status          ReservationStatus
	Read            bool
	CreatedUnixUTC  int64
}

// Notification is an inbox record derived from a reservation status change.
type Notification struct {
	attributes NotificationAttributes
}

// NewNotification validates attributes. NotificationID may be empty before persistence.
func NewNotification(attributes NotificationAttributes) (Notification, error) {
	if attributes.UserID.IsZero() {
		return Notification{}, fmt.Errorf("%w: empty user", ErrInvalidNotification)
	}
	if attributes.ReservationID.IsZero() {
		return Notification{}, fmt.Errorf("%w: empty reservation", ErrInvalidNotification)
	}
	if strings.TrimSpace(string(attributes.Type)) == "" {
		return Notification{}, fmt.Errorf("%w: empty type", ErrInvalidNotification)
	}
	if strings.TrimSpace(attributes.ReferenceNumber) == "" {
		return Notification{}, fmt.Errorf("%w: empty reference number", ErrInvalidNotification)
	}
	if strings.TrimSpace(attributes.Title) == "" || strings.TrimSpace(attributes.Message) == "" {
		return Notification{}, fmt.Errorf("%w: empty title or message", ErrInvalidNotification)
	}
	if !attributes.Status.valid() {
		return Notification{}, fmt.Errorf("%w: %q", ErrInvalidStatus, attributes.Status)
	}
	return Notification{attributes: attributes}, nil
}

// EmitNotification builds the notification for a reservation that moved to newStatus.
func EmitNotification(userID UserID, reservationID ReservationID, referenceNumber string, newStatus ReservationStatus, createdUnixUTC int64) (Notification, error) {
	template, ok := notificationTemplates[newStatus]
	if !ok {
		return Notification{}, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}
	return NewNotification(NotificationAttributes{
		UserID:          userID,
		Type:            NotificationTypeReservationStatus,
		ReservationID:   reservationID,
		ReferenceNumber: referenceNumber,
		Title:           template.title,
		Message:         fmt.Sprintf(template.message, referenceNumber),
		Status:          newStatus,
		CreatedUnixUTC:  createdUnixUTC,
	})
}

// NotificationID returns the stored id, empty before persistence.
func (notification Notification) NotificationID() NotificationID {
	return notification.attributes.NotificationID
}

// UserID returns the inbox owner.
func (notification Notification) UserID() UserID {
	return notification.attributes.UserID
}

// Type returns the notification tag.
func (notification Notification) Type() NotificationType {
	return notification.attributes.Type
}

// ReservationID returns the triggering reservation.
func (notification Notification) ReservationID() ReservationID {
	return notification.attributes.ReservationID
}

// ReferenceNumber returns the human-readable booking reference.
func (notification Notification) ReferenceNumber() string {
	return notification.attributes.ReferenceNumber
}

// Title returns the notification title.
func (notification Notification) Title() string {
	return notification.attributes.Title
}

// Message returns the notification body.
func (notification Notification) Message() string {
	return notification.attributes.Message
}

// Status returns the reservation status snapshot.
func (notification Notification) Status() ReservationStatus {
	return notification.attributes.Status
}

// Read reports whether the user has read the notification.
func (notification Notification) Read() bool {
	return notification.attributes.Read
}

// CreatedUnixUTC returns the emission time.
func (notification Notification) CreatedUnixUTC() int64 {
	return notification.attributes.CreatedUnixUTC
}
