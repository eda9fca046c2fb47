package booking

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

var timeSlotPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// UserID identifies an authenticated user.
type UserID struct {
	value string
}

// ReservationID is the caller-facing booking reference.
type ReservationID struct {
	value string
}

// ResourceID identifies a reservable asset such as a table.
type ResourceID struct {
	value string
}

// NotificationID identifies a stored notification.
type NotificationID struct {
	value string
}

// ExternalEventID correlates a reservation with an external calendar event.
type ExternalEventID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// NewReservationID validates and normalizes a reservation id.
func NewReservationID(raw string) (ReservationID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ReservationID{}, fmt.Errorf("%w: empty value", ErrInvalidReservationID)
	}
	return ReservationID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ReservationID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id ReservationID) IsZero() bool {
	return id.value == ""
}

// NewResourceID validates and normalizes a resource id.
func NewResourceID(raw string) (ResourceID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ResourceID{}, fmt.Errorf("%w: empty value", ErrInvalidResourceID)
	}
	return ResourceID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ResourceID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id ResourceID) IsZero() bool {
	return id.value == ""
}

// NewNotificationID validates and normalizes a notification id.
func NewNotificationID(raw string) (NotificationID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return NotificationID{}, fmt.Errorf("%w: empty value", ErrInvalidNotificationID)
	}
	return NotificationID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id NotificationID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id NotificationID) IsZero() bool {
	return id.value == ""
}

// NewExternalEventID validates and normalizes an external calendar event id.
func NewExternalEventID(raw string) (ExternalEventID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ExternalEventID{}, fmt.Errorf("%w: empty value", ErrInvalidExternalEventID)
	}
	return ExternalEventID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ExternalEventID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id ExternalEventID) IsZero() bool {
	return id.value == ""
}

// TimeSlot is a fixed-grammar "HH:MM" label compared by exact match.
type TimeSlot struct {
	value string
}

// NewTimeSlot validates the 24-hour "HH:MM" grammar.
func NewTimeSlot(raw string) (TimeSlot, error) {
	trimmed := strings.TrimSpace(raw)
	if !timeSlotPattern.MatchString(trimmed) {
		return TimeSlot{}, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidTimeSlot, raw)
	}
	return TimeSlot{value: trimmed}, nil
}

// String returns the slot label.
func (slot TimeSlot) String() string {
	return slot.value
}

// IsZero reports whether the slot was never set.
func (slot TimeSlot) IsZero() bool {
	return slot.value == ""
}

// PartySize is the number of guests, bounded to [1,20].
type PartySize int

// NewPartySize validates the guest count.
func NewPartySize(raw int) (PartySize, error) {
	if raw < minPartySize || raw > maxPartySize {
		return 0, fmt.Errorf("%w: must be between %d and %d, got %d", ErrInvalidPartySize, minPartySize, maxPartySize, raw)
	}
	return PartySize(raw), nil
}

// Int returns the raw guest count.
func (size PartySize) Int() int {
	return int(size)
}

// BookingDate is a timezone-naive calendar day stored as UTC midnight.
type BookingDate struct {
	midnight time.Time
}

// NewBookingDate takes the calendar day of at as seen in location.
func NewBookingDate(at time.Time, location *time.Location) (BookingDate, error) {
	if at.IsZero() {
		return BookingDate{}, fmt.Errorf("%w: empty value", ErrInvalidBookingDate)
	}
	if location == nil {
		location = time.UTC
	}
	local := at.In(location)
	return BookingDate{midnight: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)}, nil
}

// ParseBookingDate parses a YYYY-MM-DD calendar day.
func ParseBookingDate(raw string) (BookingDate, error) {
	parsed, err := time.Parse(bookingDateLayout, strings.TrimSpace(raw))
	if err != nil {
		return BookingDate{}, fmt.Errorf("%w: %q", ErrInvalidBookingDate, raw)
	}
	return BookingDate{midnight: parsed.UTC()}, nil
}

// Time returns the UTC midnight that starts the day.
func (date BookingDate) Time() time.Time {
	return date.midnight
}

// End returns the exclusive upper bound of the day window.
func (date BookingDate) End() time.Time {
	return date.midnight.Add(bookingDay)
}

// Contains reports whether at falls in [midnight, midnight+24h).
func (date BookingDate) Contains(at time.Time) bool {
	utc := at.UTC()
	return !utc.Before(date.midnight) && utc.Before(date.End())
}

// SameDay reports whether both values name the same calendar day.
func (date BookingDate) SameDay(other BookingDate) bool {
	return date.Contains(other.midnight)
}

// String returns the YYYY-MM-DD form.
func (date BookingDate) String() string {
	if date.midnight.IsZero() {
		return ""
	}
	return date.midnight.Format(bookingDateLayout)
}

// IsZero reports whether the date was never set.
func (date BookingDate) IsZero() bool {
	return date.midnight.IsZero()
}

// Customer holds the contact details captured with a booking.
type Customer struct {
	name  string
	email string
	phone string
}

// NewCustomer validates customer contact details.
func NewCustomer(name string, email string, phone string) (Customer, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return Customer{}, fmt.Errorf("%w: name is required", ErrInvalidCustomer)
	}
	address, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return Customer{}, fmt.Errorf("%w: email %q", ErrInvalidCustomer, email)
	}
	trimmedPhone := strings.TrimSpace(phone)
	if trimmedPhone == "" {
		return Customer{}, fmt.Errorf("%w: phone is required", ErrInvalidCustomer)
	}
	return Customer{name: trimmedName, email: address.Address, phone: trimmedPhone}, nil
}

// Name returns the customer name.
func (customer Customer) Name() string {
	return customer.name
}

// Email returns the customer email address.
func (customer Customer) Email() string {
	return customer.email
}

// Phone returns the customer phone number.
func (customer Customer) Phone() string {
	return customer.phone
}

func (customer Customer) isZero() bool {
	return customer.name == ""
}

// SpecialRequest is optional free text attached to a booking.
type SpecialRequest struct {
	value string
}

// NewSpecialRequest validates the request text.
func NewSpecialRequest(raw string) (SpecialRequest, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SpecialRequest{}, fmt.Errorf("%w: empty value", ErrInvalidSpecialRequest)
	}
	if len([]rune(trimmed)) > maxSpecialRequestLen {
		return SpecialRequest{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidSpecialRequest, maxSpecialRequestLen)
	}
	return SpecialRequest{value: trimmed}, nil
}

// String returns the request text.
func (request SpecialRequest) String() string {
	return request.value
}

// ReservationStatus defines the reservation lifecycle.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusNoShow    ReservationStatus = "no-show"
)

// ParseReservationStatus validates a stored or requested status.
func ParseReservationStatus(raw string) (ReservationStatus, error) {
	status := ReservationStatus(strings.TrimSpace(strings.ToLower(raw)))
	switch status {
	case ReservationStatusPending, ReservationStatusConfirmed, ReservationStatusCancelled, ReservationStatusCompleted, ReservationStatusNoShow:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// String returns the status label.
func (status ReservationStatus) String() string {
	return string(status)
}

// IsActive reports whether the status still occupies a slot.
func (status ReservationStatus) IsActive() bool {
	return status == ReservationStatusPending || status == ReservationStatusConfirmed
}

// IsTerminal reports whether no further transitions are allowed.
func (status ReservationStatus) IsTerminal() bool {
	return status == ReservationStatusCancelled || status == ReservationStatusCompleted || status == ReservationStatusNoShow
}

// valid accepts only the canonical labels; raw input goes through ParseReservationStatus.
func (status ReservationStatus) valid() bool {
	switch status {
	case ReservationStatusPending, ReservationStatusConfirmed, ReservationStatusCancelled, ReservationStatusCompleted, ReservationStatusNoShow:
		return true
	default:
		return false
	}
}

// Version is the optimistic-concurrency stamp of a reservation.
type Version int64

// NewVersion validates a stored version stamp.
func NewVersion(raw int64) (Version, error) {
	if raw < initialVersion {
		return 0, fmt.Errorf("%w: must be at least %d", ErrInvalidVersion, initialVersion)
	}
	return Version(raw), nil
}

// Int64 returns the raw stamp.
func (version Version) Int64() int64 {
	return int64(version)
}

// Next returns the stamp of the following committed mutation.
func (version Version) Next() Version {
	return version + 1
}

// Role is the authorization level of a caller.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates a role claim.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	switch role {
	case RoleUser, RoleAdmin:
		return role, nil
	case "":
		return RoleUser, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

// Caller is the authenticated identity invoking the service.
type Caller struct {
	userID UserID
	role   Role
}

// NewCaller builds a caller from authenticated claims.
func NewCaller(userID UserID, role Role) (Caller, error) {
	if userID.IsZero() {
		return Caller{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if role != RoleUser && role != RoleAdmin {
		return Caller{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return Caller{userID: userID, role: role}, nil
}

// UserID returns the caller's user id.
func (caller Caller) UserID() UserID {
	return caller.userID
}

// Role returns the caller's role.
func (caller Caller) Role() Role {
	return caller.role
}

// IsAdmin reports administrative privileges.
func (caller Caller) IsAdmin() bool {
	return caller.role == RoleAdmin
}

func (caller Caller) owns(reservation Reservation) bool {
	return caller.userID == reservation.OwnerID()
}
