package httpapi

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
)

const dateLayout = "2006-01-02"

type createReservationRequest struct {
	CustomerName   string  `json:"customer_name"`
	CustomerEmail  string  `json:"customer_email"`
	CustomerPhone  string  `json:"customer_phone"`
	Date           string  `json:"date"`
	TimeSlot       string  `json:"time_slot"`
	PartySize      int     `json:"party_size"`
	TableID        *string `json:"table_id"`
	SpecialRequest *string `json:"special_request"`
}

type updateDetailsRequest struct {
	Date           *string `json:"date"`
	TimeSlot       *string `json:"time_slot"`
	PartySize      *int    `json:"party_size"`
	SpecialRequest *string `json:"special_request"`
	Version        int64   `json:"version"`
}

type statusRequest struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

type calendarRefRequest struct {
	ExternalEventID string `json:"external_event_id"`
}

type customerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone"`
}

type reservationPayload struct {
	ReservationID    string          `json:"reservation_id"`
	OwnerID          string          `json:"owner_id"`
	Customer         customerPayload `json:"customer"`
	BookingDate      string          `json:"booking_date"`
	TimeSlot         string          `json:"time_slot"`
	PartySize        int             `json:"party_size"`
	TableID          *string         `json:"table_id"`
	SpecialRequest   *string         `json:"special_request"`
	Status           string          `json:"status"`
	CancelledUnixUTC int64           `json:"cancelled_unix_utc,omitempty"`
	ExternalEventID  *string         `json:"external_event_id"`
	Version          int64           `json:"version"`
	CreatedUnixUTC   int64           `json:"created_unix_utc"`
	UpdatedUnixUTC   int64           `json:"updated_unix_utc"`
}

type notificationPayload struct {
	NotificationID  string `json:"notification_id"`
	Type            string `json:"type"`
	ReservationID   string `json:"reservation_id"`
	ReferenceNumber string `json:"reference_number"`
	Title           string `json:"title"`
	Message         string `json:"message"`
	Status          string `json:"status"`
	Read            bool   `json:"read"`
	CreatedUnixUTC  int64  `json:"created_unix_utc"`
}

func newReservationPayload(reservation booking.Reservation) reservationPayload {
	customer := reservation.Customer()
	payload := reservationPayload{
		ReservationID:    reservation.ReservationID().String(),
		OwnerID:          reservation.OwnerID().String(),
		Customer:         customerPayload{Name: customer.Name(), Email: customer.Email(), Phone: customer.Phone()},
		BookingDate:      reservation.Date().String(),
		TimeSlot:         reservation.Slot().String(),
		PartySize:        reservation.PartySize().Int(),
		Status:           reservation.Status().String(),
		CancelledUnixUTC: reservation.CancelledAtUnixUTC(),
		Version:          reservation.Version().Int64(),
		CreatedUnixUTC:   reservation.CreatedUnixUTC(),
		UpdatedUnixUTC:   reservation.UpdatedUnixUTC(),
	}
	if resourceID, ok := reservation.ResourceID(); ok {
		value := resourceID.String()
		payload.TableID = &value
	}
	if request, ok := reservation.SpecialRequest(); ok {
		value := request.String()
		payload.SpecialRequest = &value
	}
	if externalEventID, ok := reservation.ExternalEventID(); ok {
		value := externalEventID.String()
		payload.ExternalEventID = &value
	}
	return payload
}

func newReservationPayloads(reservations []booking.Reservation) []reservationPayload {
	payloads := make([]reservationPayload, 0, len(reservations))
	for _, reservation := range reservations {
		payloads = append(payloads, newReservationPayload(reservation))
	}
	return payloads
}

func newNotificationPayloads(notifications []booking.Notification) []notificationPayload {
	payloads := make([]notificationPayload, 0, len(notifications))
	for _, notification := range notifications {
		payloads = append(payloads, notificationPayload{
			NotificationID:  notification.NotificationID().String(),
			Type:            string(notification.Type()),
			ReservationID:   notification.ReservationID().String(),
			ReferenceNumber: notification.ReferenceNumber(),
			Title:           notification.Title(),
			Message:         notification.Message(),
			Status:          notification.Status().String(),
			Read:            notification.Read(),
			CreatedUnixUTC:  notification.CreatedUnixUTC(),
		})
	}
	return payloads
}

func (request createReservationRequest) toDomain(location *time.Location) (booking.CreateRequest, error) {
	customer, err := booking.NewCustomer(request.CustomerName, request.CustomerEmail, request.CustomerPhone)
	if err != nil {
		return booking.CreateRequest{}, err
	}
	date, err := parseRequestDate(request.Date, location)
	if err != nil {
		return booking.CreateRequest{}, err
	}
	slot, err := booking.NewTimeSlot(request.TimeSlot)
	if err != nil {
		return booking.CreateRequest{}, err
	}
	partySize, err := booking.NewPartySize(request.PartySize)
	if err != nil {
		return booking.CreateRequest{}, err
	}
	domainRequest := booking.CreateRequest{
		Customer:  customer,
		Date:      date,
		Slot:      slot,
		PartySize: partySize,
	}
	if request.TableID != nil && strings.TrimSpace(*request.TableID) != "" {
		resourceID, err := booking.NewResourceID(*request.TableID)
		if err != nil {
			return booking.CreateRequest{}, err
		}
		domainRequest.ResourceID = &resourceID
	}
	if request.SpecialRequest != nil && strings.TrimSpace(*request.SpecialRequest) != "" {
		specialRequest, err := booking.NewSpecialRequest(*request.SpecialRequest)
		if err != nil {
			return booking.CreateRequest{}, err
		}
		domainRequest.SpecialRequest = &specialRequest
	}
	return domainRequest, nil
}

func (request updateDetailsRequest) toDomain(location *time.Location, expected booking.Version) (booking.DetailsPatch, error) {
	patch := booking.DetailsPatch{ExpectedVersion: expected}
	if request.Date != nil {
		date, err := parseRequestDate(*request.Date, location)
		if err != nil {
			return booking.DetailsPatch{}, err
		}
		patch.Date = &date
	}
	if request.TimeSlot != nil {
		slot, err := booking.NewTimeSlot(*request.TimeSlot)
		if err != nil {
			return booking.DetailsPatch{}, err
		}
		patch.Slot = &slot
	}
	if request.PartySize != nil {
		partySize, err := booking.NewPartySize(*request.PartySize)
		if err != nil {
			return booking.DetailsPatch{}, err
		}
		patch.PartySize = &partySize
	}
	if request.SpecialRequest != nil {
		specialRequest, err := booking.NewSpecialRequest(*request.SpecialRequest)
		if err != nil {
			return booking.DetailsPatch{}, err
		}
		patch.SpecialRequest = &specialRequest
	}
	return patch, nil
}

// parseRequestDate accepts a calendar day (read in the venue location) or an RFC 3339 timestamp.
func parseRequestDate(raw string, location *time.Location) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if parsed, err := time.ParseInLocation(dateLayout, trimmed, location); err == nil {
		return parsed, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", booking.ErrInvalidBookingDate, raw)
}

// resolveExpectedVersion prefers the If-Match header over the body field. Zero means unpinned.
func resolveExpectedVersion(ifMatch string, bodyVersion int64) (booking.Version, error) {
	trimmed := strings.TrimSpace(ifMatch)
	if trimmed == "" || trimmed == "*" {
		if bodyVersion == 0 {
			return 0, nil
		}
		return booking.NewVersion(bodyVersion)
	}
	trimmed = strings.Trim(strings.TrimPrefix(trimmed, "W/"), `"`)
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: If-Match %q", booking.ErrInvalidVersion, ifMatch)
	}
	return booking.NewVersion(parsed)
}

func etag(version booking.Version) string {
	return `"` + strconv.FormatInt(version.Int64(), 10) + `"`
}
