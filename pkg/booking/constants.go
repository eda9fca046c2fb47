package booking

import "time"

const (
	operationCreate         = "create"
	operationSetStatus      = "set_status"
	operationCancel         = "cancel"
	operationUpdateDetails  = "update_details"
	operationAttachCalendar = "attach_calendar_ref"
	operationMarkRead       = "mark_notification_read"
	operationPublish        = "publish"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	minPartySize          = 1
	maxPartySize          = 20
	maxSpecialRequestLen  = 500
	initialVersion        = 1
	bookingDateLayout     = "2006-01-02"
	reservationIDPrefix   = "RES"
	reservationIDSuffixLn = 8
	defaultNotifyLimit    = 50
	maxNotifyLimit        = 200

	errorOperationService = "service"
	errorSubjectTx        = "transaction"
	errorCodeTimeout      = "timeout"

	bookingDay = 24 * time.Hour
)
