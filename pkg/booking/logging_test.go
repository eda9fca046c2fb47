package booking

import (
	"context"
	"errors"
	"testing"
)

func TestServiceLogsCreateOperation(test *testing.T) {
	test.Parallel()
	logger := &recorderLogger{}
	service := mustNewService(test, newMemoryStore(test), WithOperationLogger(logger))
	owner := mustCaller(test, defaultOwnerLabel, RoleUser)

	created, err := service.CreateReservation(context.Background(), owner, mustCreateRequest(test, defaultTableLabel, "2026-03-14", defaultSlotLabel))
	if err != nil {
		test.Fatalf("create failed: %v", err)
	}
	entries := logger.snapshot()
	if len(entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Operation != operationCreate || entry.UserID != owner.UserID() || entry.ReservationID != created.ReservationID() || entry.ToStatus != ReservationStatusPending {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Error != nil || entry.Status != operationStatusOK {
		test.Fatalf("expected successful log entry, got %+v", entry)
	}
}

func TestServiceLogsStatusTransition(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	reservation := mustReservation(test, reservationFixture{id: "RES-LOG", resource: defaultTableLabel})
	store.seed(test, reservation)
	logger := &recorderLogger{}
	service := mustNewService(test, store, WithOperationLogger(logger))

	if _, err := service.CancelReservation(context.Background(), mustCaller(test, defaultOwnerLabel, RoleUser), reservation.ReservationID()); err != nil {
		test.Fatalf("cancel failed: %v", err)
	}
	entries := logger.snapshot()
	if len(entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Operation != operationCancel || entry.FromStatus != ReservationStatusPending || entry.ToStatus != ReservationStatusCancelled || entry.Version != 2 {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
}

func TestServiceLogsErrorStatus(test *testing.T) {
	test.Parallel()
	logger := &recorderLogger{}
	service := mustNewService(test, newMemoryStore(test), WithOperationLogger(logger))

	_, err := service.SetReservationStatus(context.Background(), mustCaller(test, defaultOwnerLabel, RoleUser), mustReservationID(test, "RES-NOPE"), StatusChange{Status: ReservationStatusConfirmed})
	if !errors.Is(err, ErrForbidden) {
		test.Fatalf(errorMismatchMessage, ErrForbidden, err)
	}
	entries := logger.snapshot()
	if len(entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(entries))
	}
	if entries[0].Status != operationStatusError || entries[0].Error == nil || entries[0].Operation != operationSetStatus {
		test.Fatalf("expected error log entry, got %+v", entries[0])
	}
}

func TestServiceLogsPublishFailureWithoutFailing(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	reservation := mustReservation(test, reservationFixture{id: "RES-PUB", resource: defaultTableLabel})
	store.seed(test, reservation)
	logger := &recorderLogger{}
	publisher := &recorderPublisher{err: errors.New("broker unavailable")}
	service := mustNewService(test, store, WithOperationLogger(logger), WithEventPublisher(publisher))

	updated, err := service.SetReservationStatus(context.Background(), mustCaller(test, defaultAdminLabel, RoleAdmin), reservation.ReservationID(), StatusChange{Status: ReservationStatusConfirmed})
	if err != nil {
		test.Fatalf("confirm failed: %v", err)
	}
	if updated.Status() != ReservationStatusConfirmed {
		test.Fatalf(errorMismatchMessage, ReservationStatusConfirmed, updated.Status())
	}
	entries := logger.snapshot()
	if len(entries) != 2 {
		test.Fatalf("expected status and publish log entries, got %d", len(entries))
	}
	if entries[1].Operation != operationPublish || entries[1].Status != operationStatusError {
		test.Fatalf("expected publish failure entry, got %+v", entries[1])
	}
}
