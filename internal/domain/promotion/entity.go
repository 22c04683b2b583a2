package promotion

import "time"

type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
)

type Promotion struct {
	ID             int64  `gorm:"column:id;primaryKey" json:"id"`
	Code           string `gorm:"column:code;uniqueIndex;size:64;not null" json:"code"`
	Name           string `gorm:"column:name" json:"name"`
	Kind           Kind   `gorm:"column:kind;size:16;not null" json:"kind"`
	// Percent for KindPercentage, minor currency units for KindFixed.
	Value float64 `gorm:"column:value;not null" json:"value"`
	// Upper bound for percentage promotions, 0 = no cap.
	MaxDiscount    int64      `gorm:"column:max_discount" json:"max_discount"`
	MinOrderAmount int64      `gorm:"column:min_order_amount" json:"min_order_amount"`
	MaxUsage       int        `gorm:"column:max_usage" json:"max_usage"` // 0 = unlimited
	UsedCount      int        `gorm:"column:used_count;not null;default:0" json:"used_count"`
	CenterID       *int64     `gorm:"column:center_id" json:"center_id,omitempty"`
	StartsAt       time.Time  `gorm:"column:starts_at" json:"starts_at"`
	EndsAt         *time.Time `gorm:"column:ends_at" json:"ends_at,omitempty"`
	IsActive       bool       `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt      time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Promotion) TableName() string { return "promotions" }

// Applicable reports whether the promotion may be used at now for the given
// center and order total.
func (p *Promotion) Applicable(now time.Time, centerID, total int64) bool {
	if !p.IsActive {
		return false
	}
	if now.Before(p.StartsAt) || (p.EndsAt != nil && !now.Before(*p.EndsAt)) {
		return false
	}
	if p.CenterID != nil && *p.CenterID != centerID {
		return false
	}
	if total < p.MinOrderAmount {
		return false
	}
	return p.MaxUsage == 0 || p.UsedCount < p.MaxUsage
}

// Amount is the discount granted on total.
func (p *Promotion) Amount(total int64) int64 {
	var amount int64
	switch p.Kind {
	case KindPercentage:
		amount = int64(float64(total)*p.Value/100 + 0.5)
		if p.MaxDiscount > 0 && amount > p.MaxDiscount {
			amount = p.MaxDiscount
		}
	case KindFixed:
		amount = int64(p.Value)
	}
	if amount < 0 {
		return 0
	}
	if amount > total {
		return total
	}
	return amount
}
