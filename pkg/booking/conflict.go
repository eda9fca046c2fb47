package booking

// ConflictMode selects which statuses occupy a slot.
type ConflictMode int

const (
	// ConflictModeCreation blocks on any pending or confirmed booking.
	ConflictModeCreation ConflictMode = iota + 1
	// ConflictModeConfirmation blocks only on confirmed bookings.
	ConflictModeConfirmation
)

// BlockingStatuses lists the statuses that occupy a slot in this mode.
func (mode ConflictMode) BlockingStatuses() []ReservationStatus {
	if mode == ConflictModeConfirmation {
		return []ReservationStatus{ReservationStatusConfirmed}
	}
	return []ReservationStatus{ReservationStatusPending, ReservationStatusConfirmed}
}

func (mode ConflictMode) blocks(status ReservationStatus) bool {
	for _, blocking := range mode.BlockingStatuses() {
		if blocking == status {
			return true
		}
	}
	return false
}

// SlotCandidate is the (resource, date, slot) tuple being claimed.
type SlotCandidate struct {
	ResourceID *ResourceID
	Date       BookingDate
	Slot       TimeSlot
	Exclude    *ReservationID
}

// HasConflict reports whether any active reservation occupies the candidate slot.
func HasConflict(candidate SlotCandidate, active []Reservation, mode ConflictMode) bool {
	_, found := FindConflict(candidate, active, mode)
	return found
}

// FindConflict returns the first reservation occupying the candidate slot.
// Table-less candidates never conflict.
func FindConflict(candidate SlotCandidate, active []Reservation, mode ConflictMode) (Reservation, bool) {
	if candidate.ResourceID == nil || candidate.ResourceID.IsZero() {
		return Reservation{}, false
	}
	for _, reservation := range active {
		if candidate.Exclude != nil && reservation.ReservationID() == *candidate.Exclude {
			continue
		}
		if !mode.blocks(reservation.Status()) {
			continue
		}
		resourceID, hasResource := reservation.ResourceID()
		if !hasResource || resourceID != *candidate.ResourceID {
			continue
		}
		if !candidate.Date.Contains(reservation.Date().Time()) {
			continue
		}
		if reservation.Slot() != candidate.Slot {
			continue
		}
		return reservation, true
	}
	return Reservation{}, false
}

func candidateFor(reservation Reservation) SlotCandidate {
	candidate := SlotCandidate{
		Date: reservation.Date(),
		Slot: reservation.Slot(),
	}
	if resourceID, ok := reservation.ResourceID(); ok {
		candidate.ResourceID = &resourceID
	}
	reservationID := reservation.ReservationID()
	candidate.Exclude = &reservationID
	return candidate
}
