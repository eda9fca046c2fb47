package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintReservationReference = "uniq_reservations_reference"
	constraintConfirmedSlot        = "uniq_reservations_confirmed_slot"
	pgUniqueViolationCode          = "23505"
	pgSerializationFailureCode     = "40001"
	pgDeadlockDetectedCode         = "40P01"
	sqliteConstraintCode           = 19
	partitionKeySeparator          = "|"
	metadataKeyReservationID       = "reservation_id"
	metadataKeyStatus              = "status"
	errorOperationStore            = "store"
	errorSubjectPartition          = "partition"
	errorSubjectReservation        = "reservation"
	errorSubjectNotification       = "notification"
	errorCodeCreate                = "create"
	errorCodeDuplicate             = "duplicate"
	errorCodeGet                   = "get"
	errorCodeInsert                = "insert"
	errorCodeInvalid               = "invalid"
	errorCodeList                  = "list"
	errorCodeLock                  = "lock"
	errorCodeMarkRead              = "mark_read"
	errorCodeSlotTaken             = "slot_taken"
	errorCodeStale                 = "stale"
	errorCodeUpdate                = "update"
)

// Store implements booking.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// LockSlotPartition upserts the partition row so the surrounding transaction
// holds its row lock until commit.
func (store *Store) LockSlotPartition(ctx context.Context, resourceID booking.ResourceID, date booking.BookingDate) error {
	lock := PartitionLock{
		PartitionKey: partitionKey(resourceID, date),
		LockedAt:     time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "partition_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"locked_at"}),
		}).
		Create(&lock).Error
	if err != nil {
		return wrapStoreError(errorSubjectPartition, errorCodeLock, err)
	}
	return nil
}

func (store *Store) ListActiveReservations(ctx context.Context, resourceID booking.ResourceID, date booking.BookingDate, statuses []booking.ReservationStatus) ([]booking.Reservation, error) {
	statusValues := make([]string, 0, len(statuses))
	for _, status := range statuses {
		statusValues = append(statusValues, status.String())
	}
	var rows []Reservation
	err := store.db.WithContext(ctx).
		Where("resource_id = ?", resourceID.String()).
		Where("booking_date >= ? AND booking_date < ?", date.Time(), date.End()).
		Where("status IN ?", statusValues).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	return mapReservations(rows)
}

func (store *Store) CreateReservation(ctx context.Context, reservation booking.Reservation) error {
	model := reservationModel(reservation)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintReservationReference) {
		return wrapStoreError(errorSubjectReservation, errorCodeDuplicate, booking.ErrReservationExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetReservation(ctx context.Context, reservationID booking.ReservationID) (booking.Reservation, error) {
	var model Reservation
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reservation_id = ?", reservationID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, booking.ErrUnknownReservation)
		}
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, err)
	}
	reservation, err := mapReservation(model)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	return reservation, nil
}

// UpdateReservation writes every mutable column when the stored version still equals expected.
func (store *Store) UpdateReservation(ctx context.Context, reservation booking.Reservation, expected booking.Version) error {
	model := reservationModel(reservation)
	result := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("reservation_id = ? AND version = ?", model.ReservationID, expected.Int64()).
		Updates(map[string]interface{}{
			"customer_name":     model.CustomerName,
			"customer_email":    model.CustomerEmail,
			"customer_phone":    model.CustomerPhone,
			"resource_id":       model.ResourceID,
			"booking_date":      model.BookingDate,
			"time_slot":         model.TimeSlot,
			"party_size":        model.PartySize,
			"special_request":   model.SpecialRequest,
			"status":            model.Status,
			"cancelled_at":      model.CancelledAt,
			"external_event_id": model.ExternalEventID,
			"version":           model.Version,
			"updated_at":        model.UpdatedAt,
		})
	if isUniqueViolation(result.Error, constraintConfirmedSlot) {
		return wrapStoreError(errorSubjectReservation, errorCodeSlotTaken, booking.ErrSlotConflict)
	}
	if isRetryable(result.Error) {
		return wrapStoreError(errorSubjectReservation, errorCodeStale, booking.ErrStaleWrite)
	}
	if result.Error != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := store.db.WithContext(ctx).Model(&Reservation{}).Where("reservation_id = ?", model.ReservationID).Count(&count).Error; err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdate, err)
	}
	if count == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdate, booking.ErrUnknownReservation)
	}
	return wrapStoreError(errorSubjectReservation, errorCodeStale, booking.ErrStaleWrite)
}

func (store *Store) ListReservations(ctx context.Context, filter booking.ReservationFilter) ([]booking.Reservation, error) {
	query := store.db.WithContext(ctx).Model(&Reservation{})
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", filter.OwnerID.String())
	}
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.Date != nil {
		query = query.Where("booking_date >= ? AND booking_date < ?", filter.Date.Time(), filter.Date.End())
	}
	var rows []Reservation
	if err := query.Order("booking_date, time_slot, id").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	return mapReservations(rows)
}

func (store *Store) InsertNotification(ctx context.Context, notification booking.Notification) error {
	model := Notification{
		NotificationID:  notification.NotificationID().String(),
		UserID:          notification.UserID().String(),
		Type:            string(notification.Type()),
		ReservationID:   notification.ReservationID().String(),
		ReferenceNumber: notification.ReferenceNumber(),
		Title:           notification.Title(),
		Message:         notification.Message(),
		Status:          notification.Status().String(),
		Read:            notification.Read(),
		Metadata: datatypes.JSONMap{
			metadataKeyReservationID: notification.ReservationID().String(),
			metadataKeyStatus:        notification.Status().String(),
		},
		CreatedAt: time.Unix(notification.CreatedUnixUTC(), 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectNotification, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListNotifications(ctx context.Context, userID booking.UserID, limit int) ([]booking.Notification, error) {
	var rows []Notification
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectNotification, errorCodeList, err)
	}
	notifications := make([]booking.Notification, 0, len(rows))
	for _, row := range rows {
		notification, err := mapNotification(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectNotification, errorCodeInvalid, err)
		}
		notifications = append(notifications, notification)
	}
	return notifications, nil
}

func (store *Store) MarkNotificationRead(ctx context.Context, userID booking.UserID, notificationID booking.NotificationID) error {
	result := store.db.WithContext(ctx).
		Model(&Notification{}).
		Where("notification_id = ? AND user_id = ?", notificationID.String(), userID.String()).
		Update("read", true)
	if result.Error != nil {
		return wrapStoreError(errorSubjectNotification, errorCodeMarkRead, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectNotification, errorCodeMarkRead, booking.ErrUnknownNotification)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func partitionKey(resourceID booking.ResourceID, date booking.BookingDate) string {
	return resourceID.String() + partitionKeySeparator + date.String()
}

func reservationModel(reservation booking.Reservation) Reservation {
	customer := reservation.Customer()
	model := Reservation{
		ReservationID: reservation.ReservationID().String(),
		OwnerID:       reservation.OwnerID().String(),
		CustomerName:  customer.Name(),
		CustomerEmail: customer.Email(),
		CustomerPhone: customer.Phone(),
		BookingDate:   reservation.Date().Time(),
		TimeSlot:      reservation.Slot().String(),
		PartySize:     reservation.PartySize().Int(),
		Status:        reservation.Status().String(),
		Version:       reservation.Version().Int64(),
		CreatedAt:     time.Unix(reservation.CreatedUnixUTC(), 0).UTC(),
		UpdatedAt:     time.Unix(reservation.UpdatedUnixUTC(), 0).UTC(),
	}
	if resourceID, ok := reservation.ResourceID(); ok {
		value := resourceID.String()
		model.ResourceID = &value
	}
	if specialRequest, ok := reservation.SpecialRequest(); ok {
		value := specialRequest.String()
		model.SpecialRequest = &value
	}
	if cancelledAt := reservation.CancelledAtUnixUTC(); cancelledAt != 0 {
		value := time.Unix(cancelledAt, 0).UTC()
		model.CancelledAt = &value
	}
	if externalEventID, ok := reservation.ExternalEventID(); ok {
		value := externalEventID.String()
		model.ExternalEventID = &value
	}
	return model
}

func mapReservations(rows []Reservation) ([]booking.Reservation, error) {
	reservations := make([]booking.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := mapReservation(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

func mapReservation(row Reservation) (booking.Reservation, error) {
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
	partySize, err := booking.NewPartySize(row.PartySize)
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

func mapNotification(row Notification) (booking.Notification, error) {
	notificationID, err := booking.NewNotificationID(row.NotificationID)
	if err != nil {
		return booking.Notification{}, err
	}
	userID, err := booking.NewUserID(row.UserID)
	if err != nil {
		return booking.Notification{}, err
	}
	reservationID, err := booking.NewReservationID(row.ReservationID)
	if err != nil {
		return booking.Notification{}, err
	}
	status, err := booking.ParseReservationStatus(row.Status)
	if err != nil {
		return booking.Notification{}, err
	}
	return booking.NewNotification(booking.NotificationAttributes{
		NotificationID:  notificationID,
		UserID:          userID,
		Type:            booking.NotificationType(row.Type),
		ReservationID:   reservationID,
		ReferenceNumber: row.ReferenceNumber,
		Title:           row.Title,
		Message:         row.Message,
		Status:          status,
		Read:            row.Read,
		CreatedUnixUTC:  row.CreatedAt.Unix(),
	})
}

// isUniqueViolation reports a unique-constraint failure. Postgres errors must name
// the constraint; sqlite and gorm's translated error carry no name and always match.
func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

// isRetryable reports postgres serialization failures and deadlocks; both
// surface as stale writes so callers reload and retry.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailureCode || pgErr.Code == pgDeadlockDetectedCode
	}
	return false
}
