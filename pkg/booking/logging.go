package booking

import (
	"context"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing booking operation.
type OperationLog struct {
	Operation     string
	UserID        UserID
	ReservationID ReservationID
	FromStatus    ReservationStatus
	ToStatus      ReservationStatus
	Version       Version
	Status        string
	Error         error
}

// StatusChangedEvent is handed to the EventPublisher after a status change commits.
type StatusChangedEvent struct {
	Reservation     Reservation
	FromStatus      ReservationStatus
	OccurredUnixUTC int64
}

// EventPublisher forwards committed status changes to decoupled collaborators
// such as calendar synchronization.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event StatusChangedEvent) error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithEventPublisher wires a post-commit publisher.
func WithEventPublisher(publisher EventPublisher) ServiceOption {
	return func(service *Service) {
		service.publisher = publisher
	}
}

// WithTransactionTimeout bounds every transactional operation.
func WithTransactionTimeout(timeout time.Duration) ServiceOption {
	return func(service *Service) {
		service.txTimeout = timeout
	}
}

// WithVenueLocation sets the location used to normalize booking dates.
func WithVenueLocation(location *time.Location) ServiceOption {
	return func(service *Service) {
		if location != nil {
			service.location = location
		}
	}
}

// WithReservationIDGenerator replaces the default reservation id scheme.
func WithReservationIDGenerator(generator func(nowUnixUTC int64) (ReservationID, error)) ServiceOption {
	return func(service *Service) {
		if generator != nil {
			service.idGenerator = generator
		}
	}
}
