package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintReservationReference = "uniq_reservations_reference"
	constraintConfirmedSlot        = "uniq_reservations_confirmed_slot"
	pgUniqueViolationCode          = "23505"
	pgSerializationFailureCode     = "40001"
	pgDeadlockDetectedCode         = "40P01"
	partitionKeySeparator          = "|"
	errorOperationStore            = "store"
	errorSubjectPartition          = "partition"
	errorSubjectReservation        = "reservation"
	errorSubjectNotification       = "notification"
	errorSubjectTransaction        = "transaction"
	errorSubjectSchema             = "schema"
	errorCodeBegin                 = "begin"
	errorCodeCommit                = "commit"
	errorCodeApply                 = "apply"
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

	reservationColumns = `
		reservation_id, owner_id, customer_name, customer_email, customer_phone,
		resource_id, booking_date, time_slot, party_size, special_request,
		status, cancelled_at, external_event_id, version, created_at, updated_at
	`

	sqlLockPartition = `select pg_advisory_xact_lock(hashtextextended($1, 0))`

	sqlListActiveReservations = `
		select ` + reservationColumns + `
		from reservations
		where resource_id = $1 and booking_date >= $2 and booking_date < $3 and status = any($4)
		order by id
	`

	sqlInsertReservation = `
		insert into reservations(` + reservationColumns + `)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	sqlSelectReservation = `
		select ` + reservationColumns + `
		from reservations
		where reservation_id = $1
		for update
	`

	sqlUpdateReservation = `
		update reservations set
			customer_name = $3, customer_email = $4, customer_phone = $5,
			resource_id = $6, booking_date = $7, time_slot = $8, party_size = $9,
			special_request = $10, status = $11, cancelled_at = $12,
			external_event_id = $13, version = $14, updated_at = $15
		where reservation_id = $1 and version = $2
	`

	sqlReservationExists = `select exists(select 1 from reservations where reservation_id = $1)`

	sqlListReservations = `
		select ` + reservationColumns + `
		from reservations
		where ($1::text is null or owner_id = $1)
		and ($2::text is null or status = $2)
		and ($3::timestamptz is null or (booking_date >= $3 and booking_date < $4))
		order by booking_date, time_slot, id
	`

	sqlInsertNotification = `
		insert into notifications(
			notification_id, user_id, type, reservation_id, reference_number,
			title, message, status, read, metadata, created_at
		)
		values (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			jsonb_build_object('reservation_id', $4::text, 'status', $8::text),
			$10
		)
	`

	sqlListNotifications = `
		select notification_id::text, user_id, type, reservation_id, reference_number,
			title, message, status, read, created_at
		from notifications
		where user_id = $1
		order by created_at desc, id desc
		limit $2
	`

	sqlMarkNotificationRead = `
		update notifications set read = true
		where notification_id = $1::uuid and user_id = $2
	`
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL the store expects.
func Schema() string {
	return schemaSQL
}

// EnsureSchema applies the embedded DDL. Every statement is idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeApply, err)
	}
	return nil
}

// queryer is the subset of pgx shared by the pool and a transaction.
type queryer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements booking.Store using a pgx connection pool (autocommit).
type Store struct {
	pool *pgxpool.Pool
	queries
}

// TxStore implements booking.Store for an active transaction.
type TxStore struct {
	tx pgx.Tx
	queries
}

type queries struct {
	db queryer
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, queries: queries{db: pool}}
}

// WithTx runs fn in a read-committed transaction. The partition advisory locks
// taken inside fn are released on commit or rollback.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &TxStore{tx: tx, queries: queries{db: tx}}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isRetryable(err) {
			return wrapStoreError(errorSubjectTransaction, errorCodeStale, booking.ErrStaleWrite)
		}
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	return fn(ctx, store)
}

func (q queries) LockSlotPartition(ctx context.Context, resourceID booking.ResourceID, date booking.BookingDate) error {
	if _, err := q.db.Exec(ctx, sqlLockPartition, partitionKey(resourceID, date)); err != nil {
		return wrapStoreError(errorSubjectPartition, errorCodeLock, err)
	}
	return nil
}

func (q queries) ListActiveReservations(ctx context.Context, resourceID booking.ResourceID, date booking.BookingDate, statuses []booking.ReservationStatus) ([]booking.Reservation, error) {
	statusValues := make([]string, 0, len(statuses))
	for _, status := range statuses {
		statusValues = append(statusValues, status.String())
	}
	rows, err := q.db.Query(ctx, sqlListActiveReservations, resourceID.String(), date.Time(), date.End(), statusValues)
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	defer rows.Close()
	reservations, err := scanReservations(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	return reservations, nil
}

func (q queries) CreateReservation(ctx context.Context, reservation booking.Reservation) error {
	row := newReservationRow(reservation)
	_, err := q.db.Exec(ctx, sqlInsertReservation,
		row.ReservationID,
		row.OwnerID,
		row.CustomerName,
		row.CustomerEmail,
		row.CustomerPhone,
		row.ResourceID,
		row.BookingDate,
		row.TimeSlot,
		row.PartySize,
		row.SpecialRequest,
		row.Status,
		row.CancelledAt,
		row.ExternalEventID,
		row.Version,
		row.CreatedAt,
		row.UpdatedAt,
	)
	if isUniqueViolation(err, constraintReservationReference) {
		return wrapStoreError(errorSubjectReservation, errorCodeDuplicate, booking.ErrReservationExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeCreate, err)
	}
	return nil
}

func (q queries) GetReservation(ctx context.Context, reservationID booking.ReservationID) (booking.Reservation, error) {
	var row reservationRow
	err := row.scan(q.db.QueryRow(ctx, sqlSelectReservation, reservationID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, booking.ErrUnknownReservation)
		}
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, err)
	}
	reservation, err := row.toDomain()
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	return reservation, nil
}

func (q queries) UpdateReservation(ctx context.Context, reservation booking.Reservation, expected booking.Version) error {
	row := newReservationRow(reservation)
	tag, err := q.db.Exec(ctx, sqlUpdateReservation,
		row.ReservationID,
		expected.Int64(),
		row.CustomerName,
		row.CustomerEmail,
		row.CustomerPhone,
		row.ResourceID,
		row.BookingDate,
		row.TimeSlot,
		row.PartySize,
		row.SpecialRequest,
		row.Status,
		row.CancelledAt,
		row.ExternalEventID,
		row.Version,
		row.UpdatedAt,
	)
	if isUniqueViolation(err, constraintConfirmedSlot) {
		return wrapStoreError(errorSubjectReservation, errorCodeSlotTaken, booking.ErrSlotConflict)
	}
	if isRetryable(err) {
		return wrapStoreError(errorSubjectReservation, errorCodeStale, booking.ErrStaleWrite)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdate, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := q.db.QueryRow(ctx, sqlReservationExists, row.ReservationID).Scan(&exists); err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdate, err)
	}
	if !exists {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdate, booking.ErrUnknownReservation)
	}
	return wrapStoreError(errorSubjectReservation, errorCodeStale, booking.ErrStaleWrite)
}

func (q queries) ListReservations(ctx context.Context, filter booking.ReservationFilter) ([]booking.Reservation, error) {
	var (
		ownerID  *string
		status   *string
		dayStart *time.Time
		dayEnd   *time.Time
	)
	if filter.OwnerID != nil {
		value := filter.OwnerID.String()
		ownerID = &value
	}
	if filter.Status != nil {
		value := filter.Status.String()
		status = &value
	}
	if filter.Date != nil {
		start, end := filter.Date.Time(), filter.Date.End()
		dayStart, dayEnd = &start, &end
	}
	rows, err := q.db.Query(ctx, sqlListReservations, ownerID, status, dayStart, dayEnd)
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	defer rows.Close()
	reservations, err := scanReservations(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	return reservations, nil
}

func (q queries) InsertNotification(ctx context.Context, notification booking.Notification) error {
	notificationID := notification.NotificationID().String()
	if notificationID == "" {
		notificationID = uuid.NewString()
	}
	_, err := q.db.Exec(ctx, sqlInsertNotification,
		notificationID,
		notification.UserID().String(),
		string(notification.Type()),
		notification.ReservationID().String(),
		notification.ReferenceNumber(),
		notification.Title(),
		notification.Message(),
		notification.Status().String(),
		notification.Read(),
		time.Unix(notification.CreatedUnixUTC(), 0).UTC(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectNotification, errorCodeInsert, err)
	}
	return nil
}

func (q queries) ListNotifications(ctx context.Context, userID booking.UserID, limit int) ([]booking.Notification, error) {
	rows, err := q.db.Query(ctx, sqlListNotifications, userID.String(), limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectNotification, errorCodeList, err)
	}
	defer rows.Close()
	notifications, err := scanNotifications(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectNotification, errorCodeInvalid, err)
	}
	return notifications, nil
}

func (q queries) MarkNotificationRead(ctx context.Context, userID booking.UserID, notificationID booking.NotificationID) error {
	if _, err := uuid.Parse(notificationID.String()); err != nil {
		return wrapStoreError(errorSubjectNotification, errorCodeMarkRead, booking.ErrUnknownNotification)
	}
	tag, err := q.db.Exec(ctx, sqlMarkNotificationRead, notificationID.String(), userID.String())
	if err != nil {
		return wrapStoreError(errorSubjectNotification, errorCodeMarkRead, err)
	}
	if tag.RowsAffected() == 0 {
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

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}

// isRetryable reports serialization failures and deadlocks, which the caller
// sees as a stale write and may retry.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailureCode || pgErr.Code == pgDeadlockDetectedCode
	}
	return false
}
