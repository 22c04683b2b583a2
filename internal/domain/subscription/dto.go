package subscription

import "time"

type PurchaseRequest struct {
	PackageID     int64      `json:"package_id" validate:"required,gt=0"`
	VehicleID     int64      `json:"vehicle_id" validate:"required,gt=0"`
	PaymentAmount int64      `json:"payment_amount" validate:"gte=0"`
	StartDate     *time.Time `json:"start_date,omitempty"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type PaymentRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

type ServiceUsage struct {
	ServiceID    int64      `json:"service_id"`
	TotalAllowed int        `json:"total_allowed"`
	Used         int        `json:"used"`
	Remaining    int        `json:"remaining"`
	LastUsedDate *time.Time `json:"last_used_date,omitempty"`
}

type UsageSummary struct {
	SubscriptionID string         `json:"subscription_id"`
	PackageName    string         `json:"package_name"`
	Status         Status         `json:"status"`
	ExpirationDate time.Time      `json:"expiration_date"`
	DaysRemaining  int            `json:"days_remaining"`
	Services       []ServiceUsage `json:"services"`
}
