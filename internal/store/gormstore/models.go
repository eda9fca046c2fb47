package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reservation mirrors the reservations table. The partial unique index keeps
// two confirmed bookings out of the same (resource, day, slot).
type Reservation struct {
	ID              uint       `gorm:"primaryKey;autoIncrement"`
	ReservationID   string     `gorm:"size:64;not null;uniqueIndex:uniq_reservations_reference"`
	OwnerID         string     `gorm:"not null;index:idx_reservations_owner"`
	CustomerName    string     `gorm:"not null"`
	CustomerEmail   string     `gorm:"not null"`
	CustomerPhone   string     `gorm:"not null"`
	ResourceID      *string    `gorm:"index:idx_reservations_partition,priority:1;uniqueIndex:uniq_reservations_confirmed_slot,priority:1,where:status = 'confirmed'"`
	BookingDate     time.Time  `gorm:"not null;index:idx_reservations_partition,priority:2;uniqueIndex:uniq_reservations_confirmed_slot,priority:2"`
	TimeSlot        string     `gorm:"size:5;not null;uniqueIndex:uniq_reservations_confirmed_slot,priority:3"`
	PartySize       int        `gorm:"not null"`
	SpecialRequest  *string    `gorm:"size:500"`
	Status          string     `gorm:"size:16;not null;index:idx_reservations_status"`
	CancelledAt     *time.Time `gorm:""`
	ExternalEventID *string    `gorm:""`
	Version         int64      `gorm:"not null;default:1"`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

func (Reservation) TableName() string { return "reservations" }

// Notification mirrors the notifications table.
type Notification struct {
	ID              uint              `gorm:"primaryKey;autoIncrement"`
	NotificationID  string            `gorm:"type:uuid;not null;uniqueIndex:uniq_notifications_id"`
	UserID          string            `gorm:"not null;index:idx_notifications_user_created,priority:1"`
	Type            string            `gorm:"size:32;not null"`
	ReservationID   string            `gorm:"not null;index:idx_notifications_reservation"`
	ReferenceNumber string            `gorm:"not null"`
	Title           string            `gorm:"not null"`
	Message         string            `gorm:"not null"`
	Status          string            `gorm:"size:16;not null"`
	Read            bool              `gorm:"not null;default:false"`
	Metadata        datatypes.JSONMap `gorm:""`
	CreatedAt       time.Time         `gorm:"not null;index:idx_notifications_user_created,priority:2"`
}

func (Notification) TableName() string { return "notifications" }

func (notification *Notification) BeforeCreate(tx *gorm.DB) error {
	if notification.NotificationID == "" {
		notification.NotificationID = uuid.NewString()
	}
	return nil
}

// PartitionLock is the row a writer locks to serialize one (resource, day) partition.
type PartitionLock struct {
	PartitionKey string    `gorm:"primaryKey"`
	LockedAt     time.Time `gorm:"not null"`
}

func (PartitionLock) TableName() string { return "slot_partition_locks" }

// Models lists every table the store needs, in migration order.
func Models() []interface{} {
	return []interface{}{&Reservation{}, &Notification{}, &PartitionLock{}}
}

// AutoMigrate creates or updates the booking tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
