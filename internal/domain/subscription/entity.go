package subscription

import "time"

// Status of a customer package subscription
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusActive         Status = "active"
	StatusSuspended      Status = "suspended"
	StatusCancelled      Status = "cancelled"
	StatusExpired        Status = "expired"
	StatusFullyUsed      Status = "fully_used"
)

var allowedTransitions = map[Status][]Status{
	StatusPendingPayment: {StatusActive, StatusCancelled},
	StatusActive:         {StatusSuspended, StatusCancelled, StatusExpired, StatusFullyUsed},
	StatusSuspended:      {StatusActive, StatusCancelled, StatusExpired},
	StatusCancelled:      {},
	StatusExpired:        {},
	StatusFullyUsed:      {},
}

// OpenStatuses block a second subscription to the same package for the same vehicle.
var OpenStatuses = []Status{StatusPendingPayment, StatusActive, StatusSuspended}

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

// Package is a prepaid maintenance bundle offered by the service center.
type Package struct {
	ID           int64            `gorm:"column:id;primaryKey" json:"id"`
	Name         string           `gorm:"column:name;not null" json:"name"`
	Description  string           `gorm:"column:description" json:"description,omitempty"`
	Price        int64            `gorm:"column:price;not null" json:"price"`
	ValidityDays int              `gorm:"column:validity_days;not null" json:"validity_days"`
	IsActive     bool             `gorm:"column:is_active;not null;default:true" json:"is_active"`
	Services     []PackageService `gorm:"foreignKey:PackageID" json:"services"`
	CreatedAt    time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

func (Package) TableName() string { return "maintenance_packages" }

// PackageService is the allowance of one service inside a package.
type PackageService struct {
	ID        int64 `gorm:"column:id;primaryKey" json:"id"`
	PackageID int64 `gorm:"column:package_id;index;not null" json:"package_id"`
	ServiceID int64 `gorm:"column:service_id;not null" json:"service_id"`
	Quantity  int   `gorm:"column:quantity;not null" json:"quantity"`
}

func (PackageService) TableName() string { return "package_services" }

type Subscription struct {
	ID             string     `gorm:"column:id;primaryKey;size:36" json:"id"`
	CustomerID     int64      `gorm:"column:customer_id;index;not null" json:"customer_id"`
	VehicleID      int64      `gorm:"column:vehicle_id;index;not null" json:"vehicle_id"`
	PackageID      int64      `gorm:"column:package_id;not null" json:"package_id"`
	PackageName    string     `gorm:"column:package_name" json:"package_name"`
	Status         Status     `gorm:"column:status;size:24;not null" json:"status"`
	PurchaseDate   time.Time  `gorm:"column:purchase_date" json:"purchase_date"`
	StartDate      time.Time  `gorm:"column:start_date" json:"start_date"`
	ExpirationDate time.Time  `gorm:"column:expiration_date;index" json:"expiration_date"`
	Price          int64      `gorm:"column:price" json:"price"`
	PaidAmount     int64      `gorm:"column:paid_amount" json:"paid_amount"`
	InvoiceID      *string    `gorm:"column:invoice_id" json:"invoice_id,omitempty"`
	SuspendReason  string     `gorm:"column:suspend_reason" json:"suspend_reason,omitempty"`
	CancelReason   string     `gorm:"column:cancel_reason" json:"cancel_reason,omitempty"`
	CancelledAt    *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt      time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at" json:"updated_at"`

	Usages []Usage `gorm:"foreignKey:SubscriptionID" json:"usages,omitempty"`
}

func (Subscription) TableName() string { return "customer_package_subscriptions" }

// IsExpiredAt checks if the subscription has passed its expiration date
func (s *Subscription) IsExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpirationDate)
}

// IsUsableAt checks if quota may be drawn from the subscription
func (s *Subscription) IsUsableAt(now time.Time) bool {
	return s.Status == StatusActive && !now.Before(s.StartDate) && !s.IsExpiredAt(now)
}

// DaysRemaining returns whole days until expiry
func (s *Subscription) DaysRemaining(now time.Time) int {
	remaining := s.ExpirationDate.Sub(now)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Hours() / 24)
}

// Usage holds the counters of one service within one subscription. The row
// is the unit of locking for quota deduction.
type Usage struct {
	ID                    int64      `gorm:"column:id;primaryKey" json:"id"`
	SubscriptionID        string     `gorm:"column:subscription_id;size:36;not null;uniqueIndex:ux_usage_subscription_service" json:"subscription_id"`
	ServiceID             int64      `gorm:"column:service_id;not null;uniqueIndex:ux_usage_subscription_service" json:"service_id"`
	TotalAllowed          int        `gorm:"column:total_allowed;not null" json:"total_allowed"`
	Used                  int        `gorm:"column:used;not null;default:0" json:"used"`
	Remaining             int        `gorm:"column:remaining;not null" json:"remaining"`
	LastUsedDate          *time.Time `gorm:"column:last_used_date" json:"last_used_date,omitempty"`
	LastUsedAppointmentID *int64     `gorm:"column:last_used_appointment_id" json:"last_used_appointment_id,omitempty"`
	UpdatedAt             time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Usage) TableName() string { return "package_service_usages" }

// UsageEntry records one successful deduction. The unique key makes a
// replayed completion of the same appointment a no-op.
type UsageEntry struct {
	ID             int64     `gorm:"column:id;primaryKey" json:"id"`
	SubscriptionID string    `gorm:"column:subscription_id;size:36;not null;uniqueIndex:ux_usage_entry" json:"subscription_id"`
	ServiceID      int64     `gorm:"column:service_id;not null;uniqueIndex:ux_usage_entry" json:"service_id"`
	AppointmentID  int64     `gorm:"column:appointment_id;not null;uniqueIndex:ux_usage_entry" json:"appointment_id"`
	Quantity       int       `gorm:"column:quantity;not null" json:"quantity"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
}

func (UsageEntry) TableName() string { return "package_usage_entries" }
