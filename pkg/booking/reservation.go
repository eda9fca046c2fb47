package booking

import "fmt"

// ReservationAttributes carries every field of a reservation for construction.
type ReservationAttributes struct {
	ReservationID      ReservationID
	OwnerID            UserID
	Customer           Customer
	Date               BookingDate
	Slot               TimeSlot
	PartySize          PartySize
	ResourceID         *ResourceID
	SpecialRequest     *SpecialRequest
	Status             ReservationStatus
	CancelledAtUnixUTC int64
	ExternalEventID    *ExternalEventID
	Version            Version
	CreatedUnixUTC     int64
	UpdatedUnixUTC     int64
}

// Reservation represents a validated reservation record.
type Reservation struct {
	attributes ReservationAttributes
}

// NewReservation validates attributes and returns a Reservation.
func NewReservation(attributes ReservationAttributes) (Reservation, error) {
	if attributes.ReservationID.IsZero() {
		return Reservation{}, fmt.Errorf("%w: empty value", ErrInvalidReservationID)
	}
	if attributes.OwnerID.IsZero() {
		return Reservation{}, fmt.Errorf("%w: empty owner", ErrInvalidUserID)
	}
	if attributes.Customer.isZero() {
		return Reservation{}, fmt.Errorf("%w: missing customer", ErrInvalidCustomer)
	}
	if attributes.Date.IsZero() {
		return Reservation{}, fmt.Errorf("%w: empty value", ErrInvalidBookingDate)
	}
	if attributes.Slot.IsZero() {
		return Reservation{}, fmt.Errorf("%w: empty value", ErrInvalidTimeSlot)
	}
	if _, err := NewPartySize(attributes.PartySize.Int()); err != nil {
		return Reservation{}, err
	}
	if attributes.ResourceID != nil && attributes.ResourceID.IsZero() {
		return Reservation{}, fmt.Errorf("%w: empty value", ErrInvalidResourceID)
	}
	if attributes.ExternalEventID != nil && attributes.ExternalEventID.IsZero() {
		return Reservation{}, fmt.Errorf("%w: empty value", ErrInvalidExternalEventID)
	}
	if !attributes.Status.valid() {
		return Reservation{}, fmt.Errorf("%w: %q", ErrInvalidStatus, attributes.Status)
	}
	if _, err := NewVersion(attributes.Version.Int64()); err != nil {
		return Reservation{}, err
	}
	isCancelled := attributes.Status == ReservationStatusCancelled
	if isCancelled != (attributes.CancelledAtUnixUTC != 0) {
		return Reservation{}, ErrInvalidCancellation
	}
	return Reservation{attributes: cloneAttributes(attributes)}, nil
}

// ReservationID returns the booking reference.
func (reservation Reservation) ReservationID() ReservationID {
	return reservation.attributes.ReservationID
}

// OwnerID returns the owning user.
func (reservation Reservation) OwnerID() UserID {
	return reservation.attributes.OwnerID
}

// Customer returns the contact details.
func (reservation Reservation) Customer() Customer {
	return reservation.attributes.Customer
}

// Date returns the booking day.
func (reservation Reservation) Date() BookingDate {
	return reservation.attributes.Date
}

// Slot returns the booking time slot.
func (reservation Reservation) Slot() TimeSlot {
	return reservation.attributes.Slot
}

// PartySize returns the number of guests.
func (reservation Reservation) PartySize() PartySize {
	return reservation.attributes.PartySize
}

// ResourceID returns the reserved resource if any.
func (reservation Reservation) ResourceID() (ResourceID, bool) {
	if reservation.attributes.ResourceID == nil {
		return ResourceID{}, false
	}
	return *reservation.attributes.ResourceID, true
}

// SpecialRequest returns the free-text request if any.
func (reservation Reservation) SpecialRequest() (SpecialRequest, bool) {
	if reservation.attributes.SpecialRequest == nil {
		return SpecialRequest{}, false
	}
	return *reservation.attributes.SpecialRequest, true
}

// Status returns the lifecycle status.
func (reservation Reservation) Status() ReservationStatus {
	return reservation.attributes.Status
}

// CancelledAtUnixUTC returns the cancellation time, zero unless cancelled.
func (reservation Reservation) CancelledAtUnixUTC() int64 {
	return reservation.attributes.CancelledAtUnixUTC
}

// ExternalEventID returns the calendar correlation id if any.
func (reservation Reservation) ExternalEventID() (ExternalEventID, bool) {
	if reservation.attributes.ExternalEventID == nil {
		return ExternalEventID{}, false
	}
	return *reservation.attributes.ExternalEventID, true
}

// Version returns the optimistic-concurrency stamp.
func (reservation Reservation) Version() Version {
	return reservation.attributes.Version
}

// CreatedUnixUTC returns the creation time.
func (reservation Reservation) CreatedUnixUTC() int64 {
	return reservation.attributes.CreatedUnixUTC
}

// UpdatedUnixUTC returns the last mutation time.
func (reservation Reservation) UpdatedUnixUTC() int64 {
	return reservation.attributes.UpdatedUnixUTC
}

// Attributes returns a copy of every field.
func (reservation Reservation) Attributes() ReservationAttributes {
	return cloneAttributes(reservation.attributes)
}

// mutate applies change to a copy, bumps the version and revalidates.
func (reservation Reservation) mutate(nowUnixUTC int64, change func(attributes *ReservationAttributes)) (Reservation, error) {
	attributes := reservation.Attributes()
	change(&attributes)
	attributes.Version = reservation.attributes.Version.Next()
	attributes.UpdatedUnixUTC = nowUnixUTC
	return NewReservation(attributes)
}

func cloneAttributes(attributes ReservationAttributes) ReservationAttributes {
	cloned := attributes
	if attributes.ResourceID != nil {
		resourceID := *attributes.ResourceID
		cloned.ResourceID = &resourceID
	}
	if attributes.SpecialRequest != nil {
		specialRequest := *attributes.SpecialRequest
		cloned.SpecialRequest = &specialRequest
	}
	if attributes.ExternalEventID != nil {
		externalEventID := *attributes.ExternalEventID
		cloned.ExternalEventID = &externalEventID
	}
	return cloned
}
