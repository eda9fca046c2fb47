package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
)

// ReservationService is the booking surface exposed over HTTP.
type ReservationService interface {
	CreateReservation(ctx context.Context, caller booking.Caller, request booking.CreateRequest) (booking.Reservation, error)
	GetReservation(ctx context.Context, caller booking.Caller, reservationID booking.ReservationID) (booking.Reservation, error)
	ListReservations(ctx context.Context, caller booking.Caller) ([]booking.Reservation, error)
	ListAllReservations(ctx context.Context, caller booking.Caller, filter booking.ReservationFilter) ([]booking.Reservation, error)
	UpdateReservationDetails(ctx context.Context, caller booking.Caller, reservationID booking.ReservationID, patch booking.DetailsPatch) (booking.Reservation, error)
	CancelReservation(ctx context.Context, caller booking.Caller, reservationID booking.ReservationID) (booking.Reservation, error)
	SetReservationStatus(ctx context.Context, caller booking.Caller, reservationID booking.ReservationID, change booking.StatusChange) (booking.Reservation, error)
	AttachExternalCalendarRef(ctx context.Context, caller booking.Caller, reservationID booking.ReservationID, externalEventID booking.ExternalEventID) (booking.Reservation, error)
	ListNotifications(ctx context.Context, caller booking.Caller, limit int) ([]booking.Notification, error)
	MarkNotificationRead(ctx context.Context, caller booking.Caller, notificationID booking.NotificationID) error
}

type httpHandler struct {
	logger  *zap.Logger
	service ReservationService
	cfg     Config
}

func (handler *httpHandler) handleCreateReservation(ctx *gin.Context) {
	caller, ok := handler.requireCaller(ctx)
	if !ok {
		return
	}
	var request createReservationRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	createRequest, err := request.toDomain(handler.cfg.VenueLocation)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.service.CreateReservation(requestCtx, caller, createRequest)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondReservation(ctx, http.StatusCreated, reservation)
}

func (handler *httpHandler) handleListReservations(ctx *gin.Context) {
	caller, ok := handler.requireCaller(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservations, err := handler.service.ListReservations(requestCtx, caller)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reservations": newReservationPayloads(reservations)})
}

func (handler *httpHandler) handleGetReservation(ctx *gin.Context) {
	caller, reservationID, ok := handler.requireReservationTarget(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.service.GetReservation(requestCtx, caller, reservationID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondReservation(ctx, http.StatusOK, reservation)
}

func (handler *httpHandler) handleUpdateDetails(ctx *gin.Context) {
	caller, reservationID, ok := handler.requireReservationTarget(ctx)
	if !ok {
		return
	}
	var request updateDetailsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	expected, err := resolveExpectedVersion(ctx.GetHeader("If-Match"), request.Version)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	patch, err := request.toDomain(handler.cfg.VenueLocation, expected)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.service.UpdateReservationDetails(requestCtx, caller, reservationID, patch)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondReservation(ctx, http.StatusOK, reservation)
}

func (handler *httpHandler) handleCancelReservation(ctx *gin.Context) {
	caller, reservationID, ok := handler.requireReservationTarget(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.service.CancelReservation(requestCtx, caller, reservationID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondReservation(ctx, http.StatusOK, reservation)
}

func (handler *httpHandler) handleAttachCalendarRef(ctx *gin.Context) {
	caller, reservationID, ok := handler.requireReservationTarget(ctx)
	if !ok {
		return
	}
	var request calendarRefRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	externalEventID, err := booking.NewExternalEventID(request.ExternalEventID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.service.AttachExternalCalendarRef(requestCtx, caller, reservationID, externalEventID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondReservation(ctx, http.StatusOK, reservation)
}

func (handler *httpHandler) handleListNotifications(ctx *gin.Context) {
	caller, ok := handler.requireCaller(ctx)
	if !ok {
		return
	}
	limit := defaultNotifyPageSize
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	notifications, err := handler.service.ListNotifications(requestCtx, caller, limit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"notifications": newNotificationPayloads(notifications)})
}

func (handler *httpHandler) handleMarkNotificationRead(ctx *gin.Context) {
	caller, ok := handler.requireCaller(ctx)
	if !ok {
		return
	}
	notificationID, err := booking.NewNotificationID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.MarkNotificationRead(requestCtx, caller, notificationID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleAdminListReservations(ctx *gin.Context) {
	caller, ok := handler.requireCaller(ctx)
	if !ok {
		return
	}
	filter := booking.ReservationFilter{}
	if raw := ctx.Query("status"); raw != "" {
		status, err := booking.ParseReservationStatus(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.Status = &status
	}
	if raw := ctx.Query("date"); raw != "" {
		date, err := booking.ParseBookingDate(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.Date = &date
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservations, err := handler.service.ListAllReservations(requestCtx, caller, filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reservations": newReservationPayloads(reservations)})
}

func (handler *httpHandler) handleAdminSetStatus(ctx *gin.Context) {
	caller, reservationID, ok := handler.requireReservationTarget(ctx)
	if !ok {
		return
	}
	var request statusRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	status, err := booking.ParseReservationStatus(request.Status)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	expected, err := resolveExpectedVersion(ctx.GetHeader("If-Match"), request.Version)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.service.SetReservationStatus(requestCtx, caller, reservationID, booking.StatusChange{Status: status, ExpectedVersion: expected})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondReservation(ctx, http.StatusOK, reservation)
}

func (handler *httpHandler) requireCaller(ctx *gin.Context) (booking.Caller, bool) {
	caller, ok := getCaller(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return booking.Caller{}, false
	}
	return caller, true
}

func (handler *httpHandler) requireReservationTarget(ctx *gin.Context) (booking.Caller, booking.ReservationID, bool) {
	caller, ok := handler.requireCaller(ctx)
	if !ok {
		return booking.Caller{}, booking.ReservationID{}, false
	}
	reservationID, err := booking.NewReservationID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return booking.Caller{}, booking.ReservationID{}, false
	}
	return caller, reservationID, true
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) respondReservation(ctx *gin.Context, status int, reservation booking.Reservation) {
	ctx.Header("ETag", etag(reservation.Version()))
	ctx.JSON(status, gin.H{"reservation": newReservationPayload(reservation)})
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, body := mapError(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
	}
	if status == http.StatusServiceUnavailable {
		ctx.Header("Retry-After", retryAfterTimeoutSeconds)
	}
	ctx.JSON(status, body)
}
