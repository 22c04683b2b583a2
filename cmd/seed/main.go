package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"servicecenter/internal/config"
	"servicecenter/internal/database"
	"servicecenter/internal/domain/appointment"
	"servicecenter/internal/domain/customer"
	"servicecenter/internal/domain/invoice"
	"servicecenter/internal/domain/promotion"
	"servicecenter/internal/domain/slot"
	"servicecenter/internal/domain/subscription"
	"servicecenter/internal/observability/logger"
	"servicecenter/internal/pkg/clock"
	"servicecenter/internal/pkg/jwt"
)

const centerID = 1

func main() {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.toml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal("config:", err)
	}
	lg, err := logger.New(cfg.Logs, cfg.AppEnv)
	if err != nil {
		log.Fatal("logger:", err)
	}
	defer func() { _ = lg.Sync() }()

	db, err := database.Connect(cfg.Database, lg)
	if err != nil {
		lg.Fatal("db connection failed", zap.Error(err))
	}

	lg.Info("running migrations")
	if err := database.Migrate(db,
		customer.AutoMigrate,
		slot.AutoMigrate,
		promotion.AutoMigrate,
		subscription.AutoMigrate,
		invoice.AutoMigrate,
		appointment.AutoMigrate,
	); err != nil {
		lg.Fatal("migrate failed", zap.Error(err))
	}

	// Cleanup old data (children first)
	lg.Info("cleaning old data")
	for _, table := range []string{
		"appointment_service_lines", "appointments",
		"package_usage_entries", "package_service_usages", "customer_package_subscriptions",
		"package_services", "maintenance_packages",
		"invoices", "promotions", "time_slots",
		"vehicles", "customers", "customer_types",
	} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			lg.Fatal("cleanup failed", zap.String("table", table), zap.Error(err))
		}
	}

	ctx := context.Background()
	now := time.Now().UTC()

	// ================== CUSTOMERS ==================
	lg.Info("creating customers")
	types := []customer.CustomerType{
		{Name: "regular", DiscountPercent: 0},
		{Name: "silver", DiscountPercent: 5},
		{Name: "gold", DiscountPercent: 10},
	}
	must(lg, db.Create(&types).Error)

	customers := make([]customer.Customer, 0, len(types))
	for i, ct := range types {
		c := customer.Customer{
			Name:           fmt.Sprintf("Customer %d", i+1),
			Phone:          fmt.Sprintf("+84 90 000 00%02d", i+1),
			Email:          fmt.Sprintf("customer%d@example.com", i+1),
			CustomerTypeID: &types[i].ID,
		}
		must(lg, db.Create(&c).Error)
		customers = append(customers, c)
		lg.Info("customer created", zap.Int64("id", c.ID), zap.String("tier", ct.Name))
	}

	vehicles := make([]customer.Vehicle, 0, len(customers))
	for i, c := range customers {
		v := customer.Vehicle{
			CustomerID: c.ID,
			Plate:      fmt.Sprintf("51A-%03d.%02d", 100+i, i),
			Make:       "Toyota",
			Model:      "Vios",
		}
		must(lg, db.Create(&v).Error)
		vehicles = append(vehicles, v)
	}

	// ================== SLOTS ==================
	lg.Info("creating time slots")
	guard := slot.NewGuard(slot.GuardParams{DB: db, Log: lg})
	day := now.Truncate(24 * time.Hour)
	for d := 1; d <= 7; d++ {
		for hour := 8; hour < 17; hour++ {
			start := day.AddDate(0, 0, d).Add(time.Duration(hour) * time.Hour)
			must(lg, guard.Create(ctx, &slot.TimeSlot{
				CenterID:    centerID,
				StartTime:   start,
				EndTime:     start.Add(time.Hour),
				MaxBookings: 3,
				IsActive:    true,
			}))
		}
	}

	// ================== PACKAGES ==================
	lg.Info("creating maintenance packages")
	packages := []subscription.Package{
		{
			Name: "Basic care", Description: "Two oil changes and one inspection",
			Price: 1_500_000, ValidityDays: 180, IsActive: true,
			Services: []subscription.PackageService{{ServiceID: 1, Quantity: 2}, {ServiceID: 2, Quantity: 1}},
		},
		{
			Name: "Full year", Description: "Quarterly service for a year",
			Price: 5_000_000, ValidityDays: 365, IsActive: true,
			Services: []subscription.PackageService{{ServiceID: 1, Quantity: 4}, {ServiceID: 2, Quantity: 4}, {ServiceID: 3, Quantity: 2}},
		},
	}
	repo := subscription.NewRepository(db)
	for i := range packages {
		must(lg, repo.CreatePackage(ctx, &packages[i]))
	}

	// ================== PROMOTIONS ==================
	lg.Info("creating promotions")
	promos := promotion.NewRepository(db, lg, clock.SystemClock{})
	must(lg, promos.Create(ctx, &promotion.Promotion{
		Code: "WELCOME10", Kind: promotion.KindPercentage, Value: 10, MaxDiscount: 200_000,
		MaxUsage: 100, StartsAt: now, IsActive: true,
	}))
	must(lg, promos.Create(ctx, &promotion.Promotion{
		Code: "FIX50K", Kind: promotion.KindFixed, Value: 50_000, MinOrderAmount: 300_000,
		StartsAt: now, IsActive: true,
	}))

	// ================== TOKENS ==================
	j := jwt.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	staffToken, err := j.GenerateToken(1000, "staff")
	must(lg, err)
	customerToken, err := j.GenerateToken(customers[0].ID, "customer")
	must(lg, err)

	lg.Info("seed completed",
		zap.Int("customers", len(customers)),
		zap.Int("vehicles", len(vehicles)),
		zap.Int("packages", len(packages)))
	fmt.Println("staff token:   ", staffToken)
	fmt.Println("customer token:", customerToken)
}

func must(lg *zap.Logger, err error) {
	if err != nil {
		lg.Fatal("seed failed", zap.Error(err))
	}
}
