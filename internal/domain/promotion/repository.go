package promotion

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"servicecenter/internal/domain/discount"
	"servicecenter/internal/pkg/apperr"
	"servicecenter/internal/pkg/clock"
)

var (
	ErrPromotionExhausted = apperr.BusinessRule("promotion_exhausted", "promotion code is no longer available")
	ErrInvalidPromotion   = apperr.Validation("invalid_promotion", "promotion needs a code, a known kind and a positive value")
)

// Repository is the database-backed promotion catalog. It implements
// discount.PromotionValidator.
type Repository struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewRepository(db *gorm.DB, log *zap.Logger, clk clock.Clock) *Repository {
	return &Repository{db: db, log: log.Named("promotion.repository"), clock: clk}
}

var _ discount.PromotionValidator = (*Repository)(nil)

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Promotion{})
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *Repository) Create(ctx context.Context, p *Promotion) error {
	p.Code = normalizeCode(p.Code)
	if p.Code == "" || p.Value <= 0 || (p.Kind != KindPercentage && p.Kind != KindFixed) {
		return ErrInvalidPromotion
	}
	if p.Kind == KindPercentage && p.Value > 100 {
		return ErrInvalidPromotion
	}
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (r *Repository) GetByCode(ctx context.Context, code string) (*Promotion, error) {
	var p Promotion
	err := r.db.WithContext(ctx).Where("code = ?", normalizeCode(code)).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Persistence(err)
	}
	return &p, nil
}

func (r *Repository) ValidatePromotion(ctx context.Context, code string, order discount.OrderContext) (bool, int64, error) {
	p, err := r.GetByCode(ctx, code)
	if err != nil {
		return false, 0, err
	}
	if p == nil || !p.Applicable(r.clock.Now(), order.CenterID, order.Total) {
		return false, 0, nil
	}
	return true, p.Amount(order.Total), nil
}

// Redeem consumes one use of the code inside the caller's transaction.
func (r *Repository) Redeem(ctx context.Context, tx *gorm.DB, code string) error {
	res := tx.WithContext(ctx).
		Model(&Promotion{}).
		Where("code = ? AND is_active = ? AND (max_usage = 0 OR used_count < max_usage)", normalizeCode(code), true).
		UpdateColumn("used_count", gorm.Expr("used_count + ?", 1))
	if res.Error != nil {
		return apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		r.log.Warn("promotion exhausted on redeem", zap.String("code", normalizeCode(code)))
		return ErrPromotionExhausted
	}
	return nil
}
