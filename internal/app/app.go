// Package app assembles the dependency graph shared by the binaries.
package app

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"servicecenter/internal/config"
	"servicecenter/internal/database"
	"servicecenter/internal/domain/appointment"
	"servicecenter/internal/domain/customer"
	"servicecenter/internal/domain/discount"
	"servicecenter/internal/domain/invoice"
	"servicecenter/internal/domain/promotion"
	"servicecenter/internal/domain/slot"
	"servicecenter/internal/domain/subscription"
	"servicecenter/internal/observability/logger"
	"servicecenter/internal/observability/metrics"
	"servicecenter/internal/pkg/clock"
)

// Core provides configuration, storage, observability and every domain
// service. configPath points at the optional TOML file.
func Core(configPath string) fx.Option {
	return fx.Options(
		fx.Provide(
			func() (*config.Config, error) { return config.Load(configPath) },
			func(cfg *config.Config) config.BookingConfig { return cfg.Booking },
			func(cfg *config.Config) config.QuotaConfig { return cfg.Quota },
			func(cfg *config.Config) (*zap.Logger, error) { return logger.New(cfg.Logs, cfg.AppEnv) },
			func(cfg *config.Config) (*snowflake.Node, error) { return snowflake.NewNode(cfg.SnowflakeNode) },
			newRegistry,
			func(reg *prometheus.Registry) *metrics.Metrics { return metrics.New(reg) },
			newDatabase,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		clock.Module,
		slot.Module,
		discount.Module,
		promotion.Module,
		customer.Module,
		invoice.Module,
		subscription.Module,
		appointment.Module,
		fx.Provide(
			func(l *subscription.Ledger) appointment.QuotaLedger { return l },
			func(r *promotion.Repository) appointment.PromotionRedeemer { return r },
		),
	)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newDatabase(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db,
		customer.AutoMigrate,
		slot.AutoMigrate,
		promotion.AutoMigrate,
		subscription.AutoMigrate,
		invoice.AutoMigrate,
		appointment.AutoMigrate,
	); err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}
