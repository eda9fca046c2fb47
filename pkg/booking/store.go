package booking

import "context"

// ReservationFilter narrows reservation listings. Nil fields match everything.
type ReservationFilter struct {
	OwnerID *UserID
	Status  *ReservationStatus
	Date    *BookingDate
}

// Store is the persistence contract used by Service.
// (gormstore and pgstore implement it.)
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	// LockSlotPartition serializes writers of one (resource, date) partition until the transaction ends.
	LockSlotPartition(ctx context.Context, resourceID ResourceID, date BookingDate) error
	ListActiveReservations(ctx context.Context, resourceID ResourceID, date BookingDate, statuses []ReservationStatus) ([]Reservation, error)
	CreateReservation(ctx context.Context, reservation Reservation) error
	GetReservation(ctx context.Context, reservationID ReservationID) (Reservation, error)
	// UpdateReservation writes reservation only if the stored version still equals expected.
	UpdateReservation(ctx context.Context, reservation Reservation, expected Version) error
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
	InsertNotification(ctx context.Context, notification Notification) error
	ListNotifications(ctx context.Context, userID UserID, limit int) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, userID UserID, notificationID NotificationID) error
}
