package appointment

import (
	"time"

	"gorm.io/datatypes"

	"servicecenter/internal/domain/discount"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

var allowedTransitions = map[Status][]Status{
	StatusPending:     {StatusConfirmed, StatusCancelled, StatusRescheduled, StatusNoShow},
	StatusConfirmed:   {StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusCompleted:   {},
	StatusCancelled:   {},
	StatusNoShow:      {},
	StatusRescheduled: {},
}

// ActiveStatuses hold a unit of slot capacity.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed, StatusCompleted}

func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s.Valid() && len(allowedTransitions[s]) == 0
}

// IsActive reports whether an appointment in s occupies its slot.
func (s Status) IsActive() bool {
	for _, a := range ActiveStatuses {
		if a == s {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Channel string

const (
	ChannelWeb    Channel = "web"
	ChannelMobile Channel = "mobile"
	ChannelPhone  Channel = "phone"
	ChannelWalkIn Channel = "walk_in"
	ChannelAdmin  Channel = "admin"
)

// Source tells how a service line is billed.
type Source string

const (
	SourceRegular      Source = "regular"
	SourceExtra        Source = "extra"
	SourceSubscription Source = "subscription"
)

func (s Source) Valid() bool {
	return s == SourceRegular || s == SourceExtra || s == SourceSubscription
}

type Appointment struct {
	ID                    int64     `gorm:"column:id;primaryKey" json:"id"`
	Code                  string    `gorm:"column:code;uniqueIndex;size:32;not null" json:"code"`
	CustomerID            int64     `gorm:"column:customer_id;index;not null" json:"customer_id"`
	VehicleID             int64     `gorm:"column:vehicle_id;not null" json:"vehicle_id"`
	CenterID              int64     `gorm:"column:center_id;not null" json:"center_id"`
	SlotID                *int64    `gorm:"column:slot_id;index" json:"slot_id,omitempty"`
	PackageSubscriptionID *string   `gorm:"column:package_subscription_id;size:36" json:"package_subscription_id,omitempty"`
	Status                Status    `gorm:"column:status;size:16;not null" json:"status"`
	Priority              Priority  `gorm:"column:priority;size:16;not null" json:"priority"`
	Source                Channel   `gorm:"column:source;size:16;not null" json:"source"`
	ScheduledAt           time.Time `gorm:"column:scheduled_at;not null" json:"scheduled_at"`

	PromotionCode    string         `gorm:"column:promotion_code" json:"promotion_code,omitempty"`
	OriginalAmount   int64          `gorm:"column:original_amount" json:"original_amount"`
	DiscountAmount   int64          `gorm:"column:discount_amount" json:"discount_amount"`
	FinalAmount      int64          `gorm:"column:final_amount" json:"final_amount"`
	AppliedDiscount  discount.Type  `gorm:"column:applied_discount;size:16" json:"applied_discount"`
	PricingBreakdown datatypes.JSON `gorm:"column:pricing_breakdown" json:"pricing_breakdown,omitempty"`

	ConfirmationMethod string     `gorm:"column:confirmation_method" json:"confirmation_method,omitempty"`
	ConfirmedAt        *time.Time `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	CancellationReason string     `gorm:"column:cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	RefundPercent      *int       `gorm:"column:refund_percent" json:"refund_percent,omitempty"`
	NoShow             bool       `gorm:"column:no_show;not null;default:false" json:"no_show"`
	CompletedAt        *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	RescheduledFromID  *int64     `gorm:"column:rescheduled_from_id;index" json:"rescheduled_from_id,omitempty"`
	Notes              string     `gorm:"column:notes" json:"notes,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
	CreatedBy int64     `gorm:"column:created_by" json:"created_by"`
	UpdatedBy int64     `gorm:"column:updated_by" json:"updated_by"`

	Lines []ServiceLine `gorm:"foreignKey:AppointmentID;constraint:OnDelete:CASCADE" json:"lines"`
}

func (Appointment) TableName() string { return "appointments" }

// ServiceLine is one requested service of an appointment. Subscription lines
// bill at 0 and draw on the package quota when the appointment completes.
type ServiceLine struct {
	ID               int64  `gorm:"column:id;primaryKey" json:"id"`
	AppointmentID    int64  `gorm:"column:appointment_id;index;not null" json:"appointment_id"`
	Position         int    `gorm:"column:position;not null" json:"position"`
	ServiceID        int64  `gorm:"column:service_id;not null" json:"service_id"`
	Source           Source `gorm:"column:source;size:16;not null" json:"source"`
	Quantity         int    `gorm:"column:quantity;not null;default:1" json:"quantity"`
	ListPrice        int64  `gorm:"column:list_price;not null" json:"list_price"`
	UnitPrice        int64  `gorm:"column:unit_price;not null" json:"unit_price"`
	EstimatedMinutes int    `gorm:"column:estimated_minutes" json:"estimated_minutes"`
	Note             string `gorm:"column:note" json:"note,omitempty"`
	QuotaSettled     bool   `gorm:"column:quota_settled;not null;default:false" json:"quota_settled"`
}

func (ServiceLine) TableName() string { return "appointment_service_lines" }

// Total is the billed amount of the line.
func (l *ServiceLine) Total() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// ChainLink is one appointment of a reschedule lineage.
type ChainLink struct {
	ID                int64     `json:"id"`
	Code              string    `json:"code"`
	Status            Status    `json:"status"`
	ScheduledAt       time.Time `json:"scheduled_at"`
	RescheduledFromID *int64    `json:"rescheduled_from_id,omitempty"`
}
