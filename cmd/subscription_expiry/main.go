// Command subscription_expiry moves subscriptions past their expiration
// date to expired. It is meant to run from cron.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"servicecenter/internal/app"
	"servicecenter/internal/domain/subscription"
)

func main() {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.toml"
	}

	var (
		svc    *subscription.Service
		logger *zap.Logger
	)
	a := fx.New(
		app.Core(path),
		fx.Populate(&svc, &logger),
	)
	if err := a.Err(); err != nil {
		log.Fatalf("init failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := a.Start(ctx); err != nil {
		log.Fatalf("start failed: %v", err)
	}

	n, err := svc.ExpireOverdue(ctx)
	if stopErr := a.Stop(context.Background()); stopErr != nil {
		logger.Warn("shutdown failed", zap.Error(stopErr))
	}
	if err != nil {
		logger.Error("subscription expiry failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("subscription expiry completed", zap.Int64("expired", n))
}
