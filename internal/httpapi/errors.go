package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
)

const (
	errorCodeInvalidPayload    = "invalid_payload"
	errorCodeValidation        = "validation_failed"
	errorCodeSlotConflict      = "slot_conflict"
	errorCodeNotFound          = "not_found"
	errorCodeInvalidTransition = "invalid_transition"
	errorCodeStaleWrite        = "stale_write"
	errorCodeForbidden         = "forbidden"
	errorCodeTimeout           = "transaction_timeout"
	errorCodeExists            = "already_exists"
	errorCodeInternal          = "internal"
	retryAfterTimeoutSeconds   = "1"
)

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// mapError converts a booking error into an HTTP status and response body.
func mapError(source error) (int, gin.H) {
	var conflictError *booking.ConflictError
	switch {
	case errors.As(source, &conflictError):
		body := errorResponse(errorCodeSlotConflict, source.Error())
		body["conflict"] = gin.H{
			"reservation_id": conflictError.ReservationID.String(),
			"status":         conflictError.Status.String(),
			"customer_name":  conflictError.CustomerName,
			"booking_date":   conflictError.Date.String(),
			"time_slot":      conflictError.Slot.String(),
		}
		return http.StatusConflict, body
	case errors.Is(source, booking.ErrSlotConflict):
		return http.StatusConflict, errorResponse(errorCodeSlotConflict, source.Error())
	case errors.Is(source, booking.ErrValidation):
		return http.StatusBadRequest, errorResponse(errorCodeValidation, source.Error())
	case errors.Is(source, booking.ErrUnknownReservation):
		return http.StatusNotFound, errorResponse(errorCodeNotFound, "reservation not found")
	case errors.Is(source, booking.ErrUnknownNotification):
		return http.StatusNotFound, errorResponse(errorCodeNotFound, "notification not found")
	case errors.Is(source, booking.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, errorResponse(errorCodeInvalidTransition, source.Error())
	case errors.Is(source, booking.ErrStaleWrite):
		return http.StatusPreconditionFailed, errorResponse(errorCodeStaleWrite, "reservation was modified concurrently")
	case errors.Is(source, booking.ErrForbidden):
		return http.StatusForbidden, errorResponse(errorCodeForbidden, "operation not permitted")
	case errors.Is(source, booking.ErrTransactionTimeout):
		return http.StatusServiceUnavailable, errorResponse(errorCodeTimeout, "try again later")
	case errors.Is(source, booking.ErrReservationExists):
		return http.StatusConflict, errorResponse(errorCodeExists, "reservation already exists")
	default:
		return http.StatusInternalServerError, errorResponse(errorCodeInternal, "internal error")
	}
}
