package pgstore

import (
	"time"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
	"github.com/jackc/pgx/v5"
)

// reservationRow holds one reservations row in column order.
type reservationRow struct {
	ReservationID   string
	OwnerID         string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	ResourceID      *string
	BookingDate     time.Time
	TimeSlot        string
	PartySize       int32
	SpecialRequest  *string
	Status          string
	CancelledAt     *time.Time
	ExternalEventID *string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func newReservationRow(reservation booking.Reservation) reservationRow {
	customer := reservation.Customer()
	row := reservationRow{
		ReservationID: reservation.ReservationID().String(),
		OwnerID:       reservation.OwnerID().String(),
		CustomerName:  customer.Name(),
		CustomerEmail: customer.Email(),
		CustomerPhone: customer.Phone(),
		BookingDate:   reservation.Date().Time(),
		TimeSlot:      reservation.Slot().String(),
		PartySize:     int32(reservation.PartySize().Int()),
		Status:        reservation.Status().String(),
		Version:       reservation.Version().Int64(),
		CreatedAt:     time.Unix(reservation.CreatedUnixUTC(), 0).UTC(),
		UpdatedAt:     time.Unix(reservation.UpdatedUnixUTC(), 0).UTC(),
	}
	if resourceID, ok := reservation.ResourceID(); ok {
		value := resourceID.String()
		row.ResourceID = &value
	}
	if specialRequest, ok := reservation.SpecialRequest(); ok {
		value := specialRequest.String()
		row.SpecialRequest = &value
	}
	if cancelledAt := reservation.CancelledAtUnixUTC(); cancelledAt != 0 {
		value := time.Unix(cancelledAt, 0).UTC()
		row.CancelledAt = &value
	}
	if externalEventID, ok := reservation.ExternalEventID(); ok {
		value := externalEventID.String()
		row.ExternalEventID = &value
	}
	return row
}

func (row *reservationRow) scan(source pgx.Row) error {
	return source.Scan(
		&row.ReservationID,
		&row.OwnerID,
		&row.CustomerName,
		&row.CustomerEmail,
		&row.CustomerPhone,
		&row.ResourceID,
		&row.BookingDate,
		&row.TimeSlot,
		&row.PartySize,
		&row.SpecialRequest,
		&row.Status,
		&row.CancelledAt,
		&row.ExternalEventID,
		&row.Version,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
}

func (row reservationRow) toDomain() (booking.Reservation, error) {
	reservationID, err := booking.NewReservationID(row.ReservationID)
	if err != nil {
		return booking.Reservation{}, err
	}
	ownerID, err := booking.NewUserID(row.OwnerID)
	if err != nil {
		return booking.Reservation{}, err
	}
	customer, err := booking.NewCustomer(row.CustomerName, row.CustomerEmail, row.CustomerPhone)
	if err != nil {
		return booking.Reservation{}, err
	}
	date, err := booking.NewBookingDate(row.BookingDate, time.UTC)
	if err != nil {
		return booking.Reservation{}, err
	}
	slot, err := booking.NewTimeSlot(row.TimeSlot)
	if err != nil {
		return booking.Reservation{}, err
	}
	partySize, err := booking.NewPartySize(int(row.PartySize))
	if err != nil {
		return booking.Reservation{}, err
	}
	status, err := booking.ParseReservationStatus(row.Status)
	if err != nil {
		return booking.Reservation{}, err
	}
	version, err := booking.NewVersion(row.Version)
	if err != nil {
		return booking.Reservation{}, err
	}
	attributes := booking.ReservationAttributes{
		ReservationID:  reservationID,
		OwnerID:        ownerID,
		Customer:       customer,
		Date:           date,
		Slot:           slot,
		PartySize:      partySize,
		Status:         status,
		Version:        version,
		CreatedUnixUTC: row.CreatedAt.Unix(),
		UpdatedUnixUTC: row.UpdatedAt.Unix(),
	}
	if row.ResourceID != nil {
		resourceID, err := booking.NewResourceID(*row.ResourceID)
		if err != nil {
			return booking.Reservation{}, err
		}
		attributes.ResourceID = &resourceID
	}
	if row.SpecialRequest != nil {
		specialRequest, err := booking.NewSpecialRequest(*row.SpecialRequest)
		if err != nil {
			return booking.Reservation{}, err
		}
		attributes.SpecialRequest = &specialRequest
	}
	if row.CancelledAt != nil {
		attributes.CancelledAtUnixUTC = row.CancelledAt.Unix()
	}
	if row.ExternalEventID != nil {
		externalEventID, err := booking.NewExternalEventID(*row.ExternalEventID)
		if err != nil {
			return booking.Reservation{}, err
		}
		attributes.ExternalEventID = &externalEventID
	}
	return booking.NewReservation(attributes)
}

func scanReservations(rows pgx.Rows) ([]booking.Reservation, error) {
	reservations := make([]booking.Reservation, 0, 8)
	for rows.Next() {
		var row reservationRow
		if err := row.scan(rows); err != nil {
			return nil, err
		}
		reservation, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, reservation)
	}
	return reservations, rows.Err()
}

func scanNotifications(rows pgx.Rows) ([]booking.Notification, error) {
	notifications := make([]booking.Notification, 0, 16)
	for rows.Next() {
		var (
			notificationIDValue string
			userIDValue         string
			typeValue           string
			reservationIDValue  string
			referenceNumber     string
			title               string
			message             string
			statusValue         string
			read                bool
			createdAt           time.Time
		)
		if err := rows.Scan(
			&notificationIDValue,
			&userIDValue,
			&typeValue,
			&reservationIDValue,
			&referenceNumber,
			&title,
			&message,
			&statusValue,
			&read,
			&createdAt,
		); err != nil {
			return nil, err
		}
		notificationID, err := booking.NewNotificationID(notificationIDValue)
		if err != nil {
			return nil, err
		}
		userID, err := booking.NewUserID(userIDValue)
		if err != nil {
			return nil, err
		}
		reservationID, err := booking.NewReservationID(reservationIDValue)
		if err != nil {
			return nil, err
		}
		status, err := booking.ParseReservationStatus(statusValue)
		if err != nil {
			return nil, err
		}
		notification, err := booking.NewNotification(booking.NotificationAttributes{
			NotificationID:  notificationID,
			UserID:          userID,
			Type:            booking.NotificationType(typeValue),
			ReservationID:   reservationID,
			ReferenceNumber: referenceNumber,
			Title:           title,
			Message:         message,
			Status:          status,
			Read:            read,
			CreatedUnixUTC:  createdAt.Unix(),
		})
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notification)
	}
	return notifications, rows.Err()
}
