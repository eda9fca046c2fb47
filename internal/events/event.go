// Package events forwards committed reservation status changes to RabbitMQ so
// downstream consumers (calendar synchronization, analytics) never query the
// booking database directly.
package events

import (
	"time"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
)

// StatusChangedType labels status change messages.
const StatusChangedType = "reservation.status_changed"

// StatusChangedMessage is the JSON payload published for every committed status change.
type StatusChangedMessage struct {
	Type            string `json:"type"`
	ReservationID   string `json:"reservation_id"`
	OwnerID         string `json:"owner_id"`
	ResourceID      string `json:"resource_id,omitempty"`
	BookingDate     string `json:"booking_date"`
	TimeSlot        string `json:"time_slot"`
	FromStatus      string `json:"from_status"`
	ToStatus        string `json:"to_status"`
	Version         int64  `json:"version"`
	ExternalEventID string `json:"external_event_id,omitempty"`
	OccurredAt      string `json:"occurred_at"`
}

// NewStatusChangedMessage flattens a domain event into its wire form.
func NewStatusChangedMessage(event booking.StatusChangedEvent) StatusChangedMessage {
	reservation := event.Reservation
	message := StatusChangedMessage{
		Type:          StatusChangedType,
		ReservationID: reservation.ReservationID().String(),
		OwnerID:       reservation.OwnerID().String(),
		BookingDate:   reservation.Date().String(),
		TimeSlot:      reservation.Slot().String(),
		FromStatus:    event.FromStatus.String(),
		ToStatus:      reservation.Status().String(),
		Version:       reservation.Version().Int64(),
		OccurredAt:    time.Unix(event.OccurredUnixUTC, 0).UTC().Format(time.RFC3339),
	}
	if resourceID, ok := reservation.ResourceID(); ok {
		message.ResourceID = resourceID.String()
	}
	if externalEventID, ok := reservation.ExternalEventID(); ok {
		message.ExternalEventID = externalEventID.String()
	}
	return message
}
