package appointment

import "time"

type LineRequest struct {
	ServiceID        int64  `json:"service_id" validate:"required,gt=0"`
	Source           Source `json:"source" validate:"required,oneof=regular extra subscription"`
	Quantity         int    `json:"quantity" validate:"omitempty,gte=1,lte=1000"`
	UnitPrice        int64  `json:"unit_price" validate:"gte=0,lte=1000000000000"`
	EstimatedMinutes int    `json:"estimated_minutes" validate:"gte=0"`
	Note             string `json:"note" validate:"max=500"`
}

type CreateRequest struct {
	CustomerID            int64         `json:"customer_id" validate:"required,gt=0"`
	VehicleID             int64         `json:"vehicle_id" validate:"required,gt=0"`
	CenterID              int64         `json:"center_id" validate:"required,gt=0"`
	SlotID                *int64        `json:"slot_id" validate:"omitempty,gt=0"`
	ScheduledAt           *time.Time    `json:"scheduled_at"`
	PackageSubscriptionID *string       `json:"package_subscription_id" validate:"omitempty,uuid"`
	PromotionCode         string        `json:"promotion_code" validate:"max=64"`
	Priority              Priority      `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Source                Channel       `json:"source" validate:"omitempty,oneof=web mobile phone walk_in admin"`
	Notes                 string        `json:"notes" validate:"max=1000"`
	Lines                 []LineRequest `json:"lines" validate:"required,min=1,max=50,dive"`
}

// RescheduleRequest describes the replacement appointment. Empty fields
// are taken from the appointment being rescheduled.
type RescheduleRequest struct {
	SlotID        *int64        `json:"slot_id" validate:"omitempty,gt=0"`
	ScheduledAt   *time.Time    `json:"scheduled_at"`
	PromotionCode string        `json:"promotion_code" validate:"max=64"`
	Notes         string        `json:"notes" validate:"max=1000"`
	Lines         []LineRequest `json:"lines" validate:"omitempty,max=50,dive"`
}

type ConfirmRequest struct {
	Method string `json:"method" validate:"required,max=32"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type CancellationResult struct {
	AppointmentID int64     `json:"appointment_id"`
	Status        Status    `json:"status"`
	RefundPercent int       `json:"refund_percent"`
	Notice        string    `json:"notice"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

// LineSettlement reports how a subscription line was settled on completion.
type LineSettlement struct {
	LineID    int64  `json:"line_id"`
	ServiceID int64  `json:"service_id"`
	Deducted  bool   `json:"deducted"`
	Source    Source `json:"source"`
	Charged   int64  `json:"charged"`
}

type CompletionResult struct {
	Appointment *Appointment     `json:"appointment"`
	Settlements []LineSettlement `json:"settlements"`
}

type ListResponse struct {
	Items  []Appointment `json:"items"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}
