// Package oplog writes booking operation records through zap.
package oplog

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	messageOperation       = "booking operation"
	messageOperationFailed = "booking operation failed"
	fieldOperation         = "operation"
	fieldStatus            = "status"
	fieldUserID            = "user_id"
	fieldReservationID     = "reservation_id"
	fieldFromStatus        = "from_status"
	fieldToStatus          = "to_status"
	fieldVersion           = "version"
)

// expectedErrors are caller-facing outcomes logged at warn level.
var expectedErrors = []error{
	booking.ErrValidation,
	booking.ErrSlotConflict,
	booking.ErrUnknownReservation,
	booking.ErrUnknownNotification,
	booking.ErrInvalidTransition,
	booking.ErrStaleWrite,
	booking.ErrForbidden,
}

// ZapLogger implements booking.OperationLogger.
type ZapLogger struct {
	logger *zap.Logger
}

// New wraps logger. A nil logger discards everything.
func New(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

func (zapLogger *ZapLogger) LogOperation(_ context.Context, entry booking.OperationLog) {
	fields := []zap.Field{
		zap.String(fieldOperation, entry.Operation),
		zap.String(fieldStatus, entry.Status),
	}
	if !entry.UserID.IsZero() {
		fields = append(fields, zap.String(fieldUserID, entry.UserID.String()))
	}
	if !entry.ReservationID.IsZero() {
		fields = append(fields, zap.String(fieldReservationID, entry.ReservationID.String()))
	}
	if entry.FromStatus != "" {
		fields = append(fields, zap.String(fieldFromStatus, entry.FromStatus.String()))
	}
	if entry.ToStatus != "" {
		fields = append(fields, zap.String(fieldToStatus, entry.ToStatus.String()))
	}
	if entry.Version != 0 {
		fields = append(fields, zap.Int64(fieldVersion, entry.Version.Int64()))
	}
	if entry.Error == nil {
		zapLogger.logger.Info(messageOperation, fields...)
		return
	}
	fields = append(fields, zap.Error(entry.Error))
	zapLogger.logger.Check(levelFor(entry.Error), messageOperationFailed).Write(fields...)
}

func levelFor(err error) zapcore.Level {
	for _, expected := range expectedErrors {
		if errors.Is(err, expected) {
			return zapcore.WarnLevel
		}
	}
	return zapcore.ErrorLevel
}
