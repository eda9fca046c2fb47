package booking

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"
)

const (
	failGetReservation    = "get_reservation"
	failCreateReservation = "create_reservation"
	failUpdateReservation = "update_reservation"
	failListActive        = "list_active"
	failInsertNotify      = "insert_notification"
	failLockPartition     = "lock_partition"
)

// memoryStore is a read-committed store: transactions see committed rows plus
// their own staged writes, partition locks are held until commit or rollback,
// and version checks are repeated at commit time.
type memoryStore struct {
	mu              sync.Mutex
	reservations    map[ReservationID]Reservation
	notifications   []Notification
	partitionLocks  map[string]*sync.Mutex
	failures        map[string]error
	notificationSeq int
}

type memoryTx struct {
	parent        *memoryStore
	created       map[ReservationID]Reservation
	updated       map[ReservationID]Reservation
	expected      map[ReservationID]Version
	notifications []Notification
	heldLocks     []*sync.Mutex
}

func newMemoryStore(test *testing.T) *memoryStore {
	test.Helper()
	return &memoryStore{
		reservations:   make(map[ReservationID]Reservation),
		partitionLocks: make(map[string]*sync.Mutex),
		failures:       make(map[string]error),
	}
}

func (store *memoryStore) failWith(operation string, err error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.failures[operation] = err
}

func (store *memoryStore) failure(operation string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.failures[operation]
}

func (store *memoryStore) seed(test *testing.T, reservation Reservation) {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	store.reservations[reservation.ReservationID()] = reservation
}

func (store *memoryStore) committed(test *testing.T, reservationID ReservationID) Reservation {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	reservation, ok := store.reservations[reservationID]
	if !ok {
		test.Fatalf("reservation %s not found", reservationID.String())
	}
	return reservation
}

func (store *memoryStore) notificationsFor(reservationID ReservationID) []Notification {
	store.mu.Lock()
	defer store.mu.Unlock()
	matched := make([]Notification, 0)
	for _, notification := range store.notifications {
		if notification.ReservationID() == reservationID {
			matched = append(matched, notification)
		}
	}
	return matched
}

func (store *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	transaction := &memoryTx{
		parent:   store,
		created:  make(map[ReservationID]Reservation),
		updated:  make(map[ReservationID]Reservation),
		expected: make(map[ReservationID]Version),
	}
	defer transaction.releaseLocks()
	if err := fn(ctx, transaction); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return transaction.commit()
}

func (store *memoryStore) LockSlotPartition(ctx context.Context, resourceID ResourceID, date BookingDate) error {
	return nil
}

func (store *memoryStore) ListActiveReservations(ctx context.Context, resourceID ResourceID, date BookingDate, statuses []ReservationStatus) ([]Reservation, error) {
	if err := store.failure(failListActive); err != nil {
		return nil, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	return filterActive(store.reservations, resourceID, date, statuses), nil
}

func (store *memoryStore) CreateReservation(ctx context.Context, reservation Reservation) error {
	return store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		return txStore.CreateReservation(ctx, reservation)
	})
}

func (store *memoryStore) GetReservation(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	if err := store.failure(failGetReservation); err != nil {
		return Reservation{}, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	reservation, ok := store.reservations[reservationID]
	if !ok {
		return Reservation{}, ErrUnknownReservation
	}
	return reservation, nil
}

func (store *memoryStore) UpdateReservation(ctx context.Context, reservation Reservation, expected Version) error {
	return store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		return txStore.UpdateReservation(ctx, reservation, expected)
	})
}

func (store *memoryStore) ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	matched := make([]Reservation, 0)
	for _, reservation := range store.reservations {
		if filter.OwnerID != nil && reservation.OwnerID() != *filter.OwnerID {
			continue
		}
		if filter.Status != nil && reservation.Status() != *filter.Status {
			continue
		}
		if filter.Date != nil && !filter.Date.SameDay(reservation.Date()) {
			continue
		}
		matched = append(matched, reservation)
	}
	sort.Slice(matched, func(left, right int) bool {
		return matched[left].ReservationID().String() < matched[right].ReservationID().String()
	})
	return matched, nil
}

func (store *memoryStore) InsertNotification(ctx context.Context, notification Notification) error {
	return store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		return txStore.InsertNotification(ctx, notification)
	})
}

func (store *memoryStore) ListNotifications(ctx context.Context, userID UserID, limit int) ([]Notification, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	matched := make([]Notification, 0)
	for index := len(store.notifications) - 1; index >= 0 && len(matched) < limit; index-- {
		if store.notifications[index].UserID() == userID {
			matched = append(matched, store.notifications[index])
		}
	}
	return matched, nil
}

func (store *memoryStore) MarkNotificationRead(ctx context.Context, userID UserID, notificationID NotificationID) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	for index, notification := range store.notifications {
		if notification.NotificationID() == notificationID && notification.UserID() == userID {
			attributes := notification.attributes
			attributes.Read = true
			store.notifications[index] = Notification{attributes: attributes}
			return nil
		}
	}
	return ErrUnknownNotification
}

func (transaction *memoryTx) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, transaction)
}

func (transaction *memoryTx) LockSlotPartition(ctx context.Context, resourceID ResourceID, date BookingDate) error {
	if err := transaction.parent.failure(failLockPartition); err != nil {
		return err
	}
	key := resourceID.String() + "|" + date.String()
	transaction.parent.mu.Lock()
	lock, ok := transaction.parent.partitionLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		transaction.parent.partitionLocks[key] = lock
	}
	transaction.parent.mu.Unlock()
	lock.Lock()
	transaction.heldLocks = append(transaction.heldLocks, lock)
	return nil
}

func (transaction *memoryTx) ListActiveReservations(ctx context.Context, resourceID ResourceID, date BookingDate, statuses []ReservationStatus) ([]Reservation, error) {
	if err := transaction.parent.failure(failListActive); err != nil {
		return nil, err
	}
	return filterActive(transaction.view(), resourceID, date, statuses), nil
}

func (transaction *memoryTx) CreateReservation(ctx context.Context, reservation Reservation) error {
	if err := transaction.parent.failure(failCreateReservation); err != nil {
		return err
	}
	if _, exists := transaction.view()[reservation.ReservationID()]; exists {
		return ErrReservationExists
	}
	transaction.created[reservation.ReservationID()] = reservation
	return nil
}

func (transaction *memoryTx) GetReservation(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	if err := transaction.parent.failure(failGetReservation); err != nil {
		return Reservation{}, err
	}
	reservation, ok := transaction.view()[reservationID]
	if !ok {
		return Reservation{}, ErrUnknownReservation
	}
	return reservation, nil
}

func (transaction *memoryTx) UpdateReservation(ctx context.Context, reservation Reservation, expected Version) error {
	if err := transaction.parent.failure(failUpdateReservation); err != nil {
		return err
	}
	current, ok := transaction.view()[reservation.ReservationID()]
	if !ok {
		return ErrUnknownReservation
	}
	if current.Version() != expected {
		return ErrStaleWrite
	}
	if _, tracked := transaction.expected[reservation.ReservationID()]; !tracked {
		transaction.expected[reservation.ReservationID()] = expected
	}
	transaction.updated[reservation.ReservationID()] = reservation
	return nil
}

func (transaction *memoryTx) ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error) {
	return transaction.parent.ListReservations(ctx, filter)
}

func (transaction *memoryTx) InsertNotification(ctx context.Context, notification Notification) error {
	if err := transaction.parent.failure(failInsertNotify); err != nil {
		return err
	}
	transaction.notifications = append(transaction.notifications, notification)
	return nil
}

func (transaction *memoryTx) ListNotifications(ctx context.Context, userID UserID, limit int) ([]Notification, error) {
	return transaction.parent.ListNotifications(ctx, userID, limit)
}

func (transaction *memoryTx) MarkNotificationRead(ctx context.Context, userID UserID, notificationID NotificationID) error {
	return transaction.parent.MarkNotificationRead(ctx, userID, notificationID)
}

func (transaction *memoryTx) view() map[ReservationID]Reservation {
	transaction.parent.mu.Lock()
	merged := make(map[ReservationID]Reservation, len(transaction.parent.reservations)+len(transaction.created))
	for reservationID, reservation := range transaction.parent.reservations {
		merged[reservationID] = reservation
	}
	transaction.parent.mu.Unlock()
	for reservationID, reservation := range transaction.created {
		merged[reservationID] = reservation
	}
	for reservationID, reservation := range transaction.updated {
		merged[reservationID] = reservation
	}
	return merged
}

func (transaction *memoryTx) commit() error {
	parent := transaction.parent
	parent.mu.Lock()
	defer parent.mu.Unlock()
	for reservationID := range transaction.created {
		if _, exists := parent.reservations[reservationID]; exists {
			return ErrReservationExists
		}
	}
	for reservationID, expected := range transaction.expected {
		current, ok := parent.reservations[reservationID]
		if ok && current.Version() != expected {
			return ErrStaleWrite
		}
	}
	for reservationID, reservation := range transaction.created {
		parent.reservations[reservationID] = reservation
	}
	for reservationID, reservation := range transaction.updated {
		parent.reservations[reservationID] = reservation
	}
	for _, notification := range transaction.notifications {
		parent.notificationSeq++
		attributes := notification.attributes
		attributes.NotificationID = NotificationID{value: "n-" + strconv.Itoa(parent.notificationSeq)}
		parent.notifications = append(parent.notifications, Notification{attributes: attributes})
	}
	return nil
}

func (transaction *memoryTx) releaseLocks() {
	for index := len(transaction.heldLocks) - 1; index >= 0; index-- {
		transaction.heldLocks[index].Unlock()
	}
	transaction.heldLocks = nil
}

func filterActive(reservations map[ReservationID]Reservation, resourceID ResourceID, date BookingDate, statuses []ReservationStatus) []Reservation {
	matched := make([]Reservation, 0)
	for _, reservation := range reservations {
		reservationResource, ok := reservation.ResourceID()
		if !ok || reservationResource != resourceID {
			continue
		}
		if !date.Contains(reservation.Date().Time()) {
			continue
		}
		for _, status := range statuses {
			if reservation.Status() == status {
				matched = append(matched, reservation)
				break
			}
		}
	}
	return matched
}
