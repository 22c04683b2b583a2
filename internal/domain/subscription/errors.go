package subscription

import "servicecenter/internal/pkg/apperr"

var (
	ErrInvalidBody          = apperr.Validation("invalid_request_body", "request body is not valid JSON")
	ErrInvalidQuantity      = apperr.Validation("invalid_quantity", "quantity must be positive")
	ErrInvalidPackage       = apperr.Validation("invalid_package", "package needs a name, validity days and at least one service")
	ErrPackageNotFound      = apperr.NotFound("package_not_found", "maintenance package not found")
	ErrSubscriptionNotFound = apperr.NotFound("subscription_not_found", "subscription not found")

	ErrPackageInactive      = apperr.BusinessRule("package_inactive", "maintenance package is not on sale")
	ErrDuplicateActive      = apperr.BusinessRule("duplicate_active_subscription", "vehicle already holds this package")
	ErrInsufficientPayment  = apperr.BusinessRule("insufficient_payment", "payment amount is below the package price")
	ErrInvalidTransition    = apperr.BusinessRule("invalid_subscription_transition", "subscription status does not allow this operation")
	ErrSubscriptionExpired  = apperr.BusinessRule("subscription_expired", "subscription has expired")
	ErrSubscriptionInactive = apperr.BusinessRule("subscription_not_active", "subscription is not active")
	ErrVehicleMismatch      = apperr.BusinessRule("subscription_vehicle_mismatch", "subscription belongs to another vehicle")
	ErrServiceNotCovered    = apperr.BusinessRule("service_not_covered", "service is not part of the package")
	ErrQuotaExhausted       = apperr.BusinessRule("quota_exhausted", "no remaining uses for this service")

	ErrNotOwner  = apperr.Forbidden("not_subscription_owner", "subscription belongs to another customer")
	ErrStaffOnly = apperr.Forbidden("staff_only", "operation requires service center staff")

	ErrInvoiceFailed = &apperr.Error{Kind: apperr.KindPersistence, Code: "invoice_failed", Message: "invoice creation failed"}
)
