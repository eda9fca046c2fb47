package booking

var allowedTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusPending: {
		ReservationStatusConfirmed,
		ReservationStatusCancelled,
		ReservationStatusCompleted,
		ReservationStatusNoShow,
	},
	ReservationStatusConfirmed: {
		ReservationStatusCancelled,
		ReservationStatusCompleted,
		ReservationStatusNoShow,
	},
}

// ValidateTransition checks a lifecycle move. It returns false with a nil error
// when from equals to on a non-terminal status.
func ValidateTransition(from ReservationStatus, to ReservationStatus) (bool, error) {
	if !from.valid() {
		return false, ErrInvalidStatus
	}
	if !to.valid() {
		return false, ErrInvalidStatus
	}
	if from.IsTerminal() {
		return false, &TransitionError{From: from, To: to}
	}
	if from == to {
		return false, nil
	}
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true, nil
		}
	}
	return false, &TransitionError{From: from, To: to}
}

// transition moves the reservation to a new status and stamps cancellation.
func (reservation Reservation) transition(to ReservationStatus, nowUnixUTC int64) (Reservation, error) {
	return reservation.mutate(nowUnixUTC, func(attributes *ReservationAttributes) {
		attributes.Status = to
		if to == ReservationStatusCancelled {
			attributes.CancelledAtUnixUTC = nowUnixUTC
		}
	})
}
