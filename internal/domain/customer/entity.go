package customer

import "time"

// CustomerType is a loyalty tier carrying a flat percentage discount.
type CustomerType struct {
	ID              int64     `gorm:"column:id;primaryKey" json:"id"`
	Name            string    `gorm:"column:name;uniqueIndex;size:64" json:"name"`
	DiscountPercent float64   `gorm:"column:discount_percent;not null;default:0" json:"discount_percent"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
}

func (CustomerType) TableName() string { return "customer_types" }

type Customer struct {
	ID             int64         `gorm:"column:id;primaryKey" json:"id"`
	Name           string        `gorm:"column:name" json:"name"`
	Phone          string        `gorm:"column:phone" json:"phone,omitempty"`
	Email          string        `gorm:"column:email" json:"email,omitempty"`
	CustomerTypeID *int64        `gorm:"column:customer_type_id" json:"customer_type_id,omitempty"`
	CustomerType   *CustomerType `gorm:"foreignKey:CustomerTypeID" json:"customer_type,omitempty"`
	CreatedAt      time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

type Vehicle struct {
	ID         int64     `gorm:"column:id;primaryKey" json:"id"`
	CustomerID int64     `gorm:"column:customer_id;index;not null" json:"customer_id"`
	Plate      string    `gorm:"column:plate;size:32" json:"plate"`
	Make       string    `gorm:"column:make" json:"make"`
	Model      string    `gorm:"column:model" json:"model"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Vehicle) TableName() string { return "vehicles" }
