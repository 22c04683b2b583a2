package subscription

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"servicecenter/internal/database"
	"servicecenter/internal/observability/metrics"
	"servicecenter/internal/pkg/clock"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:subscription_%s?mode=memory&cache=shared&_time_format=sqlite", name)
	db, err := database.OpenSQLite(dsn, nil)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func newTestLedger(db *gorm.DB, clk clock.Clock, reg *prometheus.Registry) *Ledger {
	return NewLedger(LedgerParams{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   clk,
		Metrics: metrics.New(reg),
	})
}

// seedSubscription stores an active subscription with the given allowances.
func seedSubscription(t *testing.T, db *gorm.DB, allowances map[int64]int) *Subscription {
	t.Helper()
	sub := &Subscription{
		ID:             fmt.Sprintf("sub-%d", time.Now().UnixNano()),
		CustomerID:     7,
		VehicleID:      70,
		PackageID:      1,
		PackageName:    "Basic care",
		Status:         StatusActive,
		PurchaseDate:   testNow.AddDate(0, 0, -1),
		StartDate:      testNow.AddDate(0, 0, -1),
		ExpirationDate: testNow.AddDate(0, 6, 0),
		Price:          1_500_000,
		PaidAmount:     1_500_000,
	}
	for serviceID, qty := range allowances {
		sub.Usages = append(sub.Usages, Usage{ServiceID: serviceID, TotalAllowed: qty, Remaining: qty})
	}
	require.NoError(t, NewRepository(db).CreateWithUsages(context.Background(), sub))
	return sub
}

func usageOf(t *testing.T, db *gorm.DB, subID string, serviceID int64) Usage {
	t.Helper()
	var u Usage
	require.NoError(t, db.Where("subscription_id = ? AND service_id = ?", subID, serviceID).First(&u).Error)
	return u
}

type MockVehicles struct {
	mock.Mock
}

func (m *MockVehicles) VehicleOwner(ctx context.Context, vehicleID int64) (int64, error) {
	args := m.Called(ctx, vehicleID)
	return args.Get(0).(int64), args.Error(1)
}

type MockInvoicer struct {
	mock.Mock
}

func (m *MockInvoicer) CreateInvoice(ctx context.Context, req InvoiceRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}
