package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"servicecenter/internal/config"
	"servicecenter/internal/observability/metrics"
	"servicecenter/internal/pkg/apperr"
	"servicecenter/internal/pkg/clock"
)

const defaultLockTimeout = 5 * time.Second

// deduction outcomes, also used as metric labels
const (
	resultDeducted     = "deducted"
	resultReplayed     = "replayed"
	resultInsufficient = "insufficient"
	resultInactive     = "inactive"
	resultNotCovered   = "not_covered"
	resultError        = "error"
)

type LedgerParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Config  config.QuotaConfig `optional:"true"`
	Metrics *metrics.Metrics   `optional:"true"`
}

// Ledger deducts package quota. Each deduction locks exactly one
// (subscription, service) usage row for the read-check-write window.
type Ledger struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	metrics     *metrics.Metrics
	lockTimeout time.Duration
}

func NewLedger(p LedgerParams) *Ledger {
	timeout := p.Config.LockTimeout
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	return &Ledger{
		db:          p.DB,
		log:         p.Log.Named("subscription.ledger"),
		clock:       p.Clock,
		metrics:     p.Metrics,
		lockTimeout: timeout,
	}
}

var errUsageMissing = errors.New("usage row missing")

// TryDeductUsage takes quantity uses of serviceID from the subscription on
// behalf of appointmentID. Running out of quota is reported as false, not as
// an error; the caller decides how to bill the line instead. Repeating a
// deduction for the same appointment returns true without deducting again.
func (l *Ledger) TryDeductUsage(ctx context.Context, subscriptionID string, serviceID int64, quantity int, appointmentID int64) (bool, error) {
	if quantity <= 0 {
		return false, ErrInvalidQuantity
	}
	if subscriptionID == "" || serviceID <= 0 || appointmentID <= 0 {
		return false, apperr.Validation("invalid_deduction", "subscription, service and appointment are required")
	}

	log := l.log.With(
		zap.String("subscription_id", subscriptionID),
		zap.Int64("service_id", serviceID),
		zap.Int64("appointment_id", appointmentID),
		zap.Int("quantity", quantity),
	)

	result := resultError
	err := l.withUsageLock(ctx, subscriptionID, serviceID, func(tx *gorm.DB, u *Usage) error {
		var replays int64
		if err := tx.Model(&UsageEntry{}).
			Where("subscription_id = ? AND service_id = ? AND appointment_id = ?", subscriptionID, serviceID, appointmentID).
			Count(&replays).Error; err != nil {
			return err
		}
		if replays > 0 {
			result = resultReplayed
			return nil
		}

		var sub Subscription
		if err := tx.Select("id", "status", "start_date", "expiration_date").Where("id = ?", subscriptionID).First(&sub).Error; err != nil {
			return err
		}
		now := l.clock.Now()
		if !sub.IsUsableAt(now) {
			result = resultInactive
			return nil
		}
		if u.Remaining < quantity {
			result = resultInsufficient
			return nil
		}

		// the remaining guard keeps the counter non-negative on dialects
		// without row locks
		res := tx.Model(&Usage{}).
			Where("id = ? AND remaining >= ?", u.ID, quantity).
			Updates(map[string]any{
				"used":                     gorm.Expr("used + ?", quantity),
				"remaining":                gorm.Expr("remaining - ?", quantity),
				"last_used_date":           now,
				"last_used_appointment_id": appointmentID,
				"updated_at":               now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			result = resultInsufficient
			return nil
		}

		entry := UsageEntry{
			SubscriptionID: subscriptionID,
			ServiceID:      serviceID,
			AppointmentID:  appointmentID,
			Quantity:       quantity,
			CreatedAt:      now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		result = resultDeducted
		return nil
	})
	if errors.Is(err, errUsageMissing) {
		result, err = resultNotCovered, nil
	}
	l.metrics.QuotaDeduction(result)
	if err != nil {
		log.Error("quota deduction failed", zap.Error(err))
		return false, err
	}

	switch result {
	case resultDeducted:
		log.Info("quota deducted")
		if err := l.markFullyUsedIfDrained(ctx, subscriptionID); err != nil {
			// the deduction itself is committed
			log.Error("fully used check failed", zap.Error(err))
		}
		return true, nil
	case resultReplayed:
		log.Info("quota deduction already recorded")
		return true, nil
	default:
		log.Warn("quota not deducted", zap.String("reason", result))
		return false, nil
	}
}

// withUsageLock runs fn in a transaction holding an exclusive lock on the
// usage row. The wait for the lock is bounded by lockTimeout.
func (l *Ledger) withUsageLock(ctx context.Context, subscriptionID string, serviceID int64, fn func(tx *gorm.DB, u *Usage) error) error {
	ctx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", l.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}

		var u Usage
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("subscription_id = ? AND service_id = ?", subscriptionID, serviceID).
			First(&u).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errUsageMissing
			}
			return err
		}
		return fn(tx, &u)
	})
	if err == nil || errors.Is(err, errUsageMissing) {
		return err
	}
	return apperr.Persistence(err)
}

func (l *Ledger) markFullyUsedIfDrained(ctx context.Context, subscriptionID string) error {
	var open int64
	if err := l.db.WithContext(ctx).Model(&Usage{}).
		Where("subscription_id = ? AND remaining > 0", subscriptionID).
		Count(&open).Error; err != nil {
		return apperr.Persistence(err)
	}
	if open > 0 {
		return nil
	}

	res := l.db.WithContext(ctx).Model(&Subscription{}).
		Where("id = ? AND status = ?", subscriptionID, StatusActive).
		Updates(map[string]any{"status": StatusFullyUsed, "updated_at": l.clock.Now()})
	if res.Error != nil {
		return apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 1 {
		l.metrics.SubscriptionTransition(string(StatusFullyUsed))
		l.log.Info("subscription fully used", zap.String("subscription_id", subscriptionID))
	}
	return nil
}

// CheckAvailable verifies, without deducting, that the subscription can
// cover quantity uses of serviceID for the customer and vehicle.
func (l *Ledger) CheckAvailable(ctx context.Context, subscriptionID string, customerID, vehicleID, serviceID int64, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	var sub Subscription
	err := l.db.WithContext(ctx).Where("id = ?", subscriptionID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubscriptionNotFound
		}
		return apperr.Persistence(err)
	}
	if sub.CustomerID != customerID {
		return ErrNotOwner
	}
	if sub.VehicleID != vehicleID {
		return ErrVehicleMismatch
	}
	if !sub.IsUsableAt(l.clock.Now()) {
		return ErrSubscriptionInactive
	}

	var u Usage
	err = l.db.WithContext(ctx).Where("subscription_id = ? AND service_id = ?", subscriptionID, serviceID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrServiceNotCovered
		}
		return apperr.Persistence(err)
	}
	if u.Remaining < quantity {
		return ErrQuotaExhausted
	}
	return nil
}
