package customer

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"servicecenter/internal/pkg/apperr"
)

var (
	ErrCustomerNotFound = apperr.Validation("customer_not_found", "customer does not exist")
	ErrVehicleNotFound  = apperr.Validation("vehicle_not_found", "vehicle does not exist")
)

// Repository is the read side of customer and vehicle identity data used by
// pricing and ownership checks.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&CustomerType{}, &Customer{}, &Vehicle{})
}

// DiscountPercent returns the customer-type discount of the customer, 0 when
// the customer has no type.
func (r *Repository) DiscountPercent(ctx context.Context, customerID int64) (float64, error) {
	var c Customer
	err := r.db.WithContext(ctx).Preload("CustomerType").Where("id = ?", customerID).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrCustomerNotFound
		}
		return 0, apperr.Persistence(err)
	}
	if c.CustomerType == nil {
		return 0, nil
	}
	return c.CustomerType.DiscountPercent, nil
}

func (r *Repository) VehicleOwner(ctx context.Context, vehicleID int64) (int64, error) {
	var v Vehicle
	err := r.db.WithContext(ctx).Select("id", "customer_id").Where("id = ?", vehicleID).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrVehicleNotFound
		}
		return 0, apperr.Persistence(err)
	}
	return v.CustomerID, nil
}
