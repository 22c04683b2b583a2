package appointment

import "servicecenter/internal/pkg/apperr"

var (
	ErrInvalidRequest = apperr.Validation("invalid_appointment", "appointment request is invalid")
	ErrNoLines        = apperr.Validation("no_service_lines", "appointment needs at least one service line")
	ErrReasonRequired = apperr.Validation("cancellation_reason_required", "cancellation reason is required")
	ErrMissingPackage = apperr.Validation("subscription_required", "subscription lines need a package subscription")
	ErrDuplicateLine  = apperr.Validation("duplicate_subscription_line", "a service may appear only once among subscription lines")

	ErrNotFound          = apperr.NotFound("appointment_not_found", "appointment not found")
	ErrInvalidTransition = apperr.BusinessRule("invalid_status_transition", "appointment status does not allow this operation")
	ErrNotDeletable      = apperr.BusinessRule("appointment_not_deletable", "only pending appointments can be deleted")
	ErrForbidden         = apperr.Forbidden("not_appointment_owner", "appointment belongs to another customer")
	ErrStaffOnly         = apperr.Forbidden("staff_only", "operation requires service center staff")
)
