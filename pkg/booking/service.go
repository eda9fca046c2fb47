package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service coordinates booking transactions over a Store.
type Service struct {
	store       Store
	nowFn       func() int64
	logger      OperationLogger
	publisher   EventPublisher
	idGenerator func(nowUnixUTC int64) (ReservationID, error)
	location    *time.Location
	txTimeout   time.Duration
}

// CreateRequest carries the inputs of a new booking.
type CreateRequest struct {
	Customer       Customer
	Date           time.Time
	Slot           TimeSlot
	PartySize      PartySize
	ResourceID     *ResourceID
	SpecialRequest *SpecialRequest
}

// StatusChange requests a lifecycle move. A zero ExpectedVersion accepts whatever is stored.
type StatusChange struct {
	Status          ReservationStatus
	ExpectedVersion Version
}

// DetailsPatch is a partial owner edit. Nil fields are left unchanged.
type DetailsPatch struct {
	Date            *time.Time
	Slot            *TimeSlot
	PartySize       *PartySize
	SpecialRequest  *SpecialRequest
	ExpectedVersion Version
}

func (patch DetailsPatch) empty() bool {
	return patch.Date == nil && patch.Slot == nil && patch.PartySize == nil && patch.SpecialRequest == nil
}

type statusOutcome struct {
	before  Reservation
	after   Reservation
	changed bool
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:       store,
		nowFn:       now,
		idGenerator: defaultReservationID,
		location:    time.UTC,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// CreateReservation stores a new pending reservation unless its slot is already occupied.
func (service *Service) CreateReservation(ctx context.Context, caller Caller, request CreateRequest) (Reservation, error) {
	created, operationError := service.createReservation(ctx, caller, request)
	service.logOperation(ctx, OperationLog{
		Operation:     operationCreate,
		UserID:        caller.UserID(),
		ReservationID: created.ReservationID(),
		ToStatus:      created.Status(),
		Version:       created.Version(),
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return created, nil
}

func (service *Service) createReservation(ctx context.Context, caller Caller, request CreateRequest) (Reservation, error) {
	if caller.UserID().IsZero() {
		return Reservation{}, fmt.Errorf("%w: missing caller", ErrInvalidUserID)
	}
	date, err := NewBookingDate(request.Date, service.location)
	if err != nil {
		return Reservation{}, err
	}
	var created Reservation
	err = service.withTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if request.ResourceID != nil {
			candidate := SlotCandidate{ResourceID: request.ResourceID, Date: date, Slot: request.Slot}
			if err := ensureSlotFree(ctx, transactionStore, candidate, ConflictModeCreation); err != nil {
				return err
			}
		}
		nowUnixUTC := service.nowFn()
		reservationID, err := service.idGenerator(nowUnixUTC)
		if err != nil {
			return err
		}
		reservation, err := NewReservation(ReservationAttributes{
			ReservationID:  reservationID,
			OwnerID:        caller.UserID(),
			Customer:       request.Customer,
			Date:           date,
			Slot:           request.Slot,
			PartySize:      request.PartySize,
			ResourceID:     request.ResourceID,
			SpecialRequest: request.SpecialRequest,
			Status:         ReservationStatusPending,
			Version:        initialVersion,
			CreatedUnixUTC: nowUnixUTC,
			UpdatedUnixUTC: nowUnixUTC,
		})
		if err != nil {
			return err
		}
		if err := transactionStore.CreateReservation(ctx, reservation); err != nil {
			return err
		}
		created = reservation
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	return created, nil
}

// SetReservationStatus applies an administrative status change. Non-administrators
// may only cancel their own reservations through it.
func (service *Service) SetReservationStatus(ctx context.Context, caller Caller, reservationID ReservationID, change StatusChange) (Reservation, error) {
	var (
		outcome        statusOutcome
		operationError error
	)
	switch {
	case caller.IsAdmin():
		outcome, operationError = service.changeStatus(ctx, caller, reservationID, change, authorizeAdmin)
	case change.Status == ReservationStatusCancelled:
		outcome, operationError = service.changeStatus(ctx, caller, reservationID, change, authorizeOwnerOrAdmin)
	default:
		operationError = fmt.Errorf("%w: status %s requires an administrator", ErrForbidden, change.Status)
	}
	return service.finishStatusChange(ctx, operationSetStatus, caller, reservationID, change.Status, outcome, operationError)
}

// CancelReservation cancels a reservation owned by the caller.
func (service *Service) CancelReservation(ctx context.Context, caller Caller, reservationID ReservationID) (Reservation, error) {
	change := StatusChange{Status: ReservationStatusCancelled}
	outcome, operationError := service.changeStatus(ctx, caller, reservationID, change, authorizeOwnerOrAdmin)
	return service.finishStatusChange(ctx, operationCancel, caller, reservationID, change.Status, outcome, operationError)
}

func (service *Service) changeStatus(ctx context.Context, caller Caller, reservationID ReservationID, change StatusChange, authorize func(Caller, Reservation) error) (statusOutcome, error) {
	var outcome statusOutcome
	err := service.withTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := transactionStore.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := authorize(caller, current); err != nil {
			return err
		}
		if err := checkExpectedVersion(current, change.ExpectedVersion); err != nil {
			return err
		}
		changed, err := ValidateTransition(current.Status(), change.Status)
		if err != nil {
			return err
		}
		outcome = statusOutcome{before: current, after: current}
		if !changed {
			return nil
		}
		if change.Status == ReservationStatusConfirmed {
			if err := ensureSlotFree(ctx, transactionStore, candidateFor(current), ConflictModeConfirmation); err != nil {
				return err
			}
		}
		nowUnixUTC := service.nowFn()
		updated, err := current.transition(change.Status, nowUnixUTC)
		if err != nil {
			return err
		}
		if err := transactionStore.UpdateReservation(ctx, updated, current.Version()); err != nil {
			return err
		}
		notification, err := EmitNotification(updated.OwnerID(), updated.ReservationID(), updated.ReservationID().String(), updated.Status(), nowUnixUTC)
		if err != nil {
			return err
		}
		if err := transactionStore.InsertNotification(ctx, notification); err != nil {
			return err
		}
		outcome = statusOutcome{before: current, after: updated, changed: true}
		return nil
	})
	if err != nil {
		return statusOutcome{}, err
	}
	return outcome, nil
}

func (service *Service) finishStatusChange(ctx context.Context, operation string, caller Caller, reservationID ReservationID, target ReservationStatus, outcome statusOutcome, operationError error) (Reservation, error) {
	service.logOperation(ctx, OperationLog{
		Operation:     operation,
		UserID:        caller.UserID(),
		ReservationID: reservationID,
		FromStatus:    outcome.before.Status(),
		ToStatus:      target,
		Version:       outcome.after.Version(),
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	if outcome.changed {
		service.publishStatusChange(ctx, caller, outcome)
	}
	return outcome.after, nil
}

// UpdateReservationDetails applies a partial edit to a pending or confirmed reservation
// owned by the caller; administrators change status, not details.
// Moving a tabled reservation to another day or slot re-runs the creation-mode conflict check.
func (service *Service) UpdateReservationDetails(ctx context.Context, caller Caller, reservationID ReservationID, patch DetailsPatch) (Reservation, error) {
	updated, operationError := service.updateDetails(ctx, caller, reservationID, patch)
	service.logOperation(ctx, OperationLog{
		Operation:     operationUpdateDetails,
		UserID:        caller.UserID(),
		ReservationID: reservationID,
		FromStatus:    updated.Status(),
		ToStatus:      updated.Status(),
		Version:       updated.Version(),
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return updated, nil
}

func (service *Service) updateDetails(ctx context.Context, caller Caller, reservationID ReservationID, patch DetailsPatch) (Reservation, error) {
	if patch.empty() {
		return Reservation{}, ErrEmptyPatch
	}
	var newDate *BookingDate
	if patch.Date != nil {
		date, err := NewBookingDate(*patch.Date, service.location)
		if err != nil {
			return Reservation{}, err
		}
		newDate = &date
	}
	var updated Reservation
	err := service.withTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := transactionStore.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := authorizeOwner(caller, current); err != nil {
			return err
		}
		if !current.Status().IsActive() {
			return fmt.Errorf("%w: reservation is %s", ErrInvalidTransition, current.Status())
		}
		if err := checkExpectedVersion(current, patch.ExpectedVersion); err != nil {
			return err
		}
		next, err := current.mutate(service.nowFn(), func(attributes *ReservationAttributes) {
			if newDate != nil {
				attributes.Date = *newDate
			}
			if patch.Slot != nil {
				attributes.Slot = *patch.Slot
			}
			if patch.PartySize != nil {
				attributes.PartySize = *patch.PartySize
			}
			if patch.SpecialRequest != nil {
				attributes.SpecialRequest = patch.SpecialRequest
			}
		})
		if err != nil {
			return err
		}
		if !current.Date().SameDay(next.Date()) || current.Slot() != next.Slot() {
			if err := ensureSlotFree(ctx, transactionStore, candidateFor(next), ConflictModeCreation); err != nil {
				return err
			}
		}
		if err := transactionStore.UpdateReservation(ctx, next, current.Version()); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	return updated, nil
}

// AttachExternalCalendarRef records the external calendar event id of a reservation.
func (service *Service) AttachExternalCalendarRef(ctx context.Context, caller Caller, reservationID ReservationID, externalEventID ExternalEventID) (Reservation, error) {
	var updated Reservation
	operationError := service.withTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := transactionStore.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := authorizeOwnerOrAdmin(caller, current); err != nil {
			return err
		}
		next, err := current.mutate(service.nowFn(), func(attributes *ReservationAttributes) {
			attributes.ExternalEventID = &externalEventID
		})
		if err != nil {
			return err
		}
		if err := transactionStore.UpdateReservation(ctx, next, current.Version()); err != nil {
			return err
		}
		updated = next
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationAttachCalendar,
		UserID:        caller.UserID(),
		ReservationID: reservationID,
		Version:       updated.Version(),
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return updated, nil
}

// GetReservation returns one reservation visible to the caller.
func (service *Service) GetReservation(ctx context.Context, caller Caller, reservationID ReservationID) (Reservation, error) {
	reservation, err := service.store.GetReservation(ctx, reservationID)
	if err != nil {
		return Reservation{}, err
	}
	if err := authorizeOwnerOrAdmin(caller, reservation); err != nil {
		return Reservation{}, err
	}
	return reservation, nil
}

// ListReservations lists the caller's own reservations.
func (service *Service) ListReservations(ctx context.Context, caller Caller) ([]Reservation, error) {
	ownerID := caller.UserID()
	if ownerID.IsZero() {
		return nil, fmt.Errorf("%w: missing caller", ErrInvalidUserID)
	}
	return service.store.ListReservations(ctx, ReservationFilter{OwnerID: &ownerID})
}

// ListAllReservations lists reservations across owners for administrators.
func (service *Service) ListAllReservations(ctx context.Context, caller Caller, filter ReservationFilter) ([]Reservation, error) {
	if !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: listing all reservations requires an administrator", ErrForbidden)
	}
	return service.store.ListReservations(ctx, filter)
}

// ListNotifications returns the caller's inbox, newest first.
func (service *Service) ListNotifications(ctx context.Context, caller Caller, limit int) ([]Notification, error) {
	if caller.UserID().IsZero() {
		return nil, fmt.Errorf("%w: missing caller", ErrInvalidUserID)
	}
	return service.store.ListNotifications(ctx, caller.UserID(), normalizeNotificationLimit(limit))
}

// MarkNotificationRead flags one of the caller's notifications as read.
func (service *Service) MarkNotificationRead(ctx context.Context, caller Caller, notificationID NotificationID) error {
	operationError := service.store.MarkNotificationRead(ctx, caller.UserID(), notificationID)
	service.logOperation(ctx, OperationLog{
		Operation: operationMarkRead,
		UserID:    caller.UserID(),
		Error:     operationError,
	})
	return operationError
}

func (service *Service) withTx(ctx context.Context, fn func(ctx context.Context, transactionStore Store) error) error {
	if service.txTimeout <= 0 {
		return service.store.WithTx(ctx, fn)
	}
	transactionContext, cancel := context.WithTimeout(ctx, service.txTimeout)
	defer cancel()
	err := service.store.WithTx(transactionContext, fn)
	if err != nil && ctx.Err() == nil && errors.Is(transactionContext.Err(), context.DeadlineExceeded) {
		return WrapError(errorOperationService, errorSubjectTx, errorCodeTimeout, fmt.Errorf("%w: %v", ErrTransactionTimeout, err))
	}
	return err
}

func (service *Service) publishStatusChange(ctx context.Context, caller Caller, outcome statusOutcome) {
	if service.publisher == nil {
		return
	}
	event := StatusChangedEvent{
		Reservation:     outcome.after,
		FromStatus:      outcome.before.Status(),
		OccurredUnixUTC: outcome.after.UpdatedUnixUTC(),
	}
	if err := service.publisher.PublishStatusChanged(ctx, event); err != nil {
		service.logOperation(ctx, OperationLog{
			Operation:     operationPublish,
			UserID:        caller.UserID(),
			ReservationID: outcome.after.ReservationID(),
			FromStatus:    outcome.before.Status(),
			ToStatus:      outcome.after.Status(),
			Version:       outcome.after.Version(),
			Error:         err,
		})
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// ensureSlotFree locks the candidate's partition and rejects occupied slots.
// The lock is held until the surrounding transaction ends.
func ensureSlotFree(ctx context.Context, transactionStore Store, candidate SlotCandidate, mode ConflictMode) error {
	if candidate.ResourceID == nil {
		return nil
	}
	if err := transactionStore.LockSlotPartition(ctx, *candidate.ResourceID, candidate.Date); err != nil {
		return err
	}
	active, err := transactionStore.ListActiveReservations(ctx, *candidate.ResourceID, candidate.Date, mode.BlockingStatuses())
	if err != nil {
		return err
	}
	if conflicting, found := FindConflict(candidate, active, mode); found {
		return newConflictError(conflicting)
	}
	return nil
}

func checkExpectedVersion(current Reservation, expected Version) error {
	if expected == 0 || expected == current.Version() {
		return nil
	}
	return fmt.Errorf("%w: reservation %s expected version %d, found %d", ErrStaleWrite, current.ReservationID().String(), expected, current.Version())
}

func authorizeAdmin(caller Caller, _ Reservation) error {
	if !caller.IsAdmin() {
		return fmt.Errorf("%w: administrator required", ErrForbidden)
	}
	return nil
}

// authorizeOwner hides reservations the caller did not make, whatever its role.
func authorizeOwner(caller Caller, reservation Reservation) error {
	if caller.owns(reservation) {
		return nil
	}
	return ErrUnknownReservation
}

// authorizeOwnerOrAdmin hides other users' reservations behind ErrUnknownReservation.
func authorizeOwnerOrAdmin(caller Caller, reservation Reservation) error {
	if caller.IsAdmin() || caller.owns(reservation) {
		return nil
	}
	return ErrUnknownReservation
}

func normalizeNotificationLimit(limit int) int {
	if limit <= 0 {
		return defaultNotifyLimit
	}
	if limit > maxNotifyLimit {
		return maxNotifyLimit
	}
	return limit
}

func defaultReservationID(nowUnixUTC int64) (ReservationID, error) {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:reservationIDSuffixLn]
	stamp := strings.ToUpper(strconv.FormatInt(nowUnixUTC, 36))
	return NewReservationID(reservationIDPrefix + "-" + stamp + "-" + suffix)
}
