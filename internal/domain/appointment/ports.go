package appointment

import (
	"context"

	"gorm.io/gorm"
)

// CustomerDirectory provides the customer-type discount used in pricing.
type CustomerDirectory interface {
	DiscountPercent(ctx context.Context, customerID int64) (float64, error)
}

// QuotaLedger checks and draws package quota for subscription lines.
type QuotaLedger interface {
	CheckAvailable(ctx context.Context, subscriptionID string, customerID, vehicleID, serviceID int64, quantity int) error
	TryDeductUsage(ctx context.Context, subscriptionID string, serviceID int64, quantity int, appointmentID int64) (bool, error)
}

// PromotionRedeemer consumes one use of an applied promotion code inside
// the booking transaction.
type PromotionRedeemer interface {
	Redeem(ctx context.Context, tx *gorm.DB, code string) error
}
