package booking

import (
	"context"
	"sync"
	"testing"
	"time"
)

const (
	errorMismatchMessage = "expected %v, got %v"
	fixedNowUnixUTC      = int64(1767225600)
	defaultSlotLabel     = "19:00"
	defaultTableLabel    = "table-7"
	defaultOwnerLabel    = "owner-1"
	defaultAdminLabel    = "admin-1"
)

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustReservationID(test *testing.T, raw string) ReservationID {
	test.Helper()
	reservationID, err := NewReservationID(raw)
	if err != nil {
		test.Fatalf("reservation id: %v", err)
	}
	return reservationID
}

func mustResourceID(test *testing.T, raw string) *ResourceID {
	test.Helper()
	resourceID, err := NewResourceID(raw)
	if err != nil {
		test.Fatalf("resource id: %v", err)
	}
	return &resourceID
}

func mustTimeSlot(test *testing.T, raw string) TimeSlot {
	test.Helper()
	slot, err := NewTimeSlot(raw)
	if err != nil {
		test.Fatalf("time slot: %v", err)
	}
	return slot
}

func mustPartySize(test *testing.T, raw int) PartySize {
	test.Helper()
	size, err := NewPartySize(raw)
	if err != nil {
		test.Fatalf("party size: %v", err)
	}
	return size
}

func mustBookingDate(test *testing.T, raw string) BookingDate {
	test.Helper()
	date, err := ParseBookingDate(raw)
	if err != nil {
		test.Fatalf("booking date: %v", err)
	}
	return date
}

func mustCustomer(test *testing.T, name string) Customer {
	test.Helper()
	customer, err := NewCustomer(name, "guest@example.com", "+1 555 0100")
	if err != nil {
		test.Fatalf("customer: %v", err)
	}
	return customer
}

func mustCaller(test *testing.T, raw string, role Role) Caller {
	test.Helper()
	caller, err := NewCaller(mustUserID(test, raw), role)
	if err != nil {
		test.Fatalf("caller: %v", err)
	}
	return caller
}

type reservationFixture struct {
	id       string
	owner    string
	resource string
	date     string
	slot     string
	status   ReservationStatus
	version  Version
}

func mustReservation(test *testing.T, fixture reservationFixture) Reservation {
	test.Helper()
	if fixture.owner == "" {
		fixture.owner = defaultOwnerLabel
	}
	if fixture.date == "" {
		fixture.date = "2026-03-14"
	}
	if fixture.slot == "" {
		fixture.slot = defaultSlotLabel
	}
	if fixture.status == "" {
		fixture.status = ReservationStatusPending
	}
	if fixture.version == 0 {
		fixture.version = initialVersion
	}
	attributes := ReservationAttributes{
		ReservationID:  mustReservationID(test, fixture.id),
		OwnerID:        mustUserID(test, fixture.owner),
		Customer:       mustCustomer(test, "Guest "+fixture.id),
		Date:           mustBookingDate(test, fixture.date),
		Slot:           mustTimeSlot(test, fixture.slot),
		PartySize:      mustPartySize(test, 4),
		Status:         fixture.status,
		Version:        fixture.version,
		CreatedUnixUTC: fixedNowUnixUTC,
		UpdatedUnixUTC: fixedNowUnixUTC,
	}
	if fixture.resource != "" {
		attributes.ResourceID = mustResourceID(test, fixture.resource)
	}
	if fixture.status == ReservationStatusCancelled {
		attributes.CancelledAtUnixUTC = fixedNowUnixUTC
	}
	reservation, err := NewReservation(attributes)
	if err != nil {
		test.Fatalf("reservation: %v", err)
	}
	return reservation
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, newTestClock().Now, options...)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func mustCreateRequest(test *testing.T, resource string, date string, slot string) CreateRequest {
	test.Helper()
	request := CreateRequest{
		Customer:  mustCustomer(test, "Ada Lovelace"),
		Date:      mustBookingDate(test, date).Time().Add(12 * time.Hour),
		Slot:      mustTimeSlot(test, slot),
		PartySize: mustPartySize(test, 2),
	}
	if resource != "" {
		request.ResourceID = mustResourceID(test, resource)
	}
	return request
}

// testClock advances one second per reading so version bumps get distinct timestamps.
type testClock struct {
	mu      sync.Mutex
	current int64
}

func newTestClock() *testClock {
	return &testClock{current: fixedNowUnixUTC}
}

func (clock *testClock) Now() int64 {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.current++
	return clock.current
}

type recorderLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) snapshot() []OperationLog {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	return append([]OperationLog(nil), logger.entries...)
}

type recorderPublisher struct {
	mu     sync.Mutex
	events []StatusChangedEvent
	err    error
}

func (publisher *recorderPublisher) PublishStatusChanged(_ context.Context, event StatusChangedEvent) error {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	publisher.events = append(publisher.events, event)
	return publisher.err
}

func (publisher *recorderPublisher) snapshot() []StatusChangedEvent {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	return append([]StatusChangedEvent(nil), publisher.events...)
}
