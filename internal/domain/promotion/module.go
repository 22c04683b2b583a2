package promotion

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"servicecenter/internal/domain/discount"
	"servicecenter/internal/pkg/clock"
)

var Module = fx.Module("promotion.repository",
	fx.Provide(func(db *gorm.DB, log *zap.Logger, clk clock.Clock) *Repository {
		return NewRepository(db, log, clk)
	}),
	fx.Provide(func(r *Repository) discount.PromotionValidator { return r }),
)
