package invoice

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusIssued Status = "issued"
	StatusVoid   Status = "void"
)

// Invoice is issued when a maintenance package is sold.
type Invoice struct {
	ID             string            `gorm:"column:id;primaryKey;size:36" json:"id"`
	Number         string            `gorm:"column:number;uniqueIndex;size:32;not null" json:"number"`
	CustomerID     int64             `gorm:"column:customer_id;index;not null" json:"customer_id"`
	SubscriptionID string            `gorm:"column:subscription_id;index;size:36" json:"subscription_id"`
	Description    string            `gorm:"column:description" json:"description"`
	Amount         int64             `gorm:"column:amount;not null" json:"amount"`
	Status         Status            `gorm:"column:status;size:16;not null" json:"status"`
	Metadata       datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	IssuedAt       time.Time         `gorm:"column:issued_at" json:"issued_at"`
	CreatedAt      time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (Invoice) TableName() string { return "invoices" }
