package subscription

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"servicecenter/internal/pkg/apperr"
)

// Repository handles persistence for packages and subscriptions. Usage rows
// are written here only on purchase; afterwards the Ledger owns them.
type Repository interface {
	// Packages
	CreatePackage(ctx context.Context, pkg *Package) error
	GetPackage(ctx context.Context, id int64) (*Package, error)

	// Subscriptions
	GetByID(ctx context.Context, id string) (*Subscription, error)
	FindOpen(ctx context.Context, vehicleID, packageID int64) (*Subscription, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]Subscription, error)
	CreateWithUsages(ctx context.Context, sub *Subscription) error
	UpdateStatus(ctx context.Context, id string, from, to Status, fields map[string]any) (bool, error)
	LinkInvoice(ctx context.Context, id, invoiceID string) error
	ListUsages(ctx context.Context, id string) ([]Usage, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// AutoMigrate creates the subscription tables and the partial unique index
// that keeps one open subscription per vehicle and package.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Package{}, &PackageService{}, &Subscription{}, &Usage{}, &UsageEntry{}); err != nil {
		return err
	}
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_open_subscription_vehicle_package
		ON customer_package_subscriptions (vehicle_id, package_id)
		WHERE status IN ('pending_payment', 'active', 'suspended')`).Error
}

func (r *repository) CreatePackage(ctx context.Context, pkg *Package) error {
	if err := r.db.WithContext(ctx).Create(pkg).Error; err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (r *repository) GetPackage(ctx context.Context, id int64) (*Package, error) {
	var pkg Package
	err := r.db.WithContext(ctx).Preload("Services").Where("id = ?", id).First(&pkg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPackageNotFound
		}
		return nil, apperr.Persistence(err)
	}
	return &pkg, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Subscription, error) {
	var sub Subscription
	err := r.db.WithContext(ctx).
		Preload("Usages", func(db *gorm.DB) *gorm.DB { return db.Order("service_id ASC") }).
		Where("id = ?", id).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, apperr.Persistence(err)
	}
	return &sub, nil
}

func (r *repository) FindOpen(ctx context.Context, vehicleID, packageID int64) (*Subscription, error) {
	var sub Subscription
	err := r.db.WithContext(ctx).
		Where("vehicle_id = ? AND package_id = ? AND status IN ?", vehicleID, packageID, OpenStatuses).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Persistence(err)
	}
	return &sub, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID int64) ([]Subscription, error) {
	var subs []Subscription
	err := r.db.WithContext(ctx).
		Preload("Usages").
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return subs, nil
}

func (r *repository) CreateWithUsages(ctx context.Context, sub *Subscription) error {
	usages := sub.Usages
	sub.Usages = nil
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		for i := range usages {
			usages[i].SubscriptionID = sub.ID
		}
		if len(usages) > 0 {
			if err := tx.Create(&usages).Error; err != nil {
				return err
			}
		}
		return nil
	})
	sub.Usages = usages
	if err != nil {
		if apperr.IsUniqueConstraint(err) {
			return ErrDuplicateActive.Wrap(err)
		}
		return apperr.Persistence(err)
	}
	return nil
}

// UpdateStatus moves id from one status to another. It reports false when
// the row was no longer in the from status.
func (r *repository) UpdateStatus(ctx context.Context, id string, from, to Status, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&Subscription{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, apperr.Persistence(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) LinkInvoice(ctx context.Context, id, invoiceID string) error {
	err := r.db.WithContext(ctx).
		Model(&Subscription{}).
		Where("id = ?", id).
		Updates(map[string]any{"invoice_id": invoiceID, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (r *repository) ListUsages(ctx context.Context, id string) ([]Usage, error) {
	var usages []Usage
	if err := r.db.WithContext(ctx).Where("subscription_id = ?", id).Order("service_id ASC").Find(&usages).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	return usages, nil
}

func (r *repository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&Subscription{}).
		Where("status IN ? AND expiration_date <= ?", []Status{StatusActive, StatusSuspended}, now).
		Updates(map[string]any{
			"status":     StatusExpired,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, apperr.Persistence(res.Error)
	}
	return res.RowsAffected, nil
}
