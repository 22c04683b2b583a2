package appointment

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"servicecenter/internal/database"
	"servicecenter/internal/domain"
	"servicecenter/internal/domain/discount"
	"servicecenter/internal/domain/promotion"
	"servicecenter/internal/domain/slot"
	"servicecenter/internal/domain/subscription"
	"servicecenter/internal/observability/metrics"
	"servicecenter/internal/pkg/clock"
)

var (
	testNow  = time.Date(2026, 4, 6, 8, 0, 0, 0, time.UTC)
	owner    = domain.Actor{UserID: 7, Role: domain.RoleCustomer}
	stranger = domain.Actor{UserID: 8, Role: domain.RoleCustomer}
	staff    = domain.Actor{UserID: 1, Role: domain.RoleStaff}
)

type MockCustomers struct {
	mock.Mock
}

func (m *MockCustomers) DiscountPercent(ctx context.Context, customerID int64) (float64, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).(float64), args.Error(1)
}

type fixture struct {
	db        *gorm.DB
	svc       *Service
	chains    *ChainTracker
	slots     *slot.Guard
	ledger    *subscription.Ledger
	promos    *promotion.Repository
	customers *MockCustomers
	clock     *clock.Manual
	reg       *prometheus.Registry
}

func setup(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:appointment_%s?mode=memory&cache=shared&_time_format=sqlite", name)
	db, err := database.OpenSQLite(dsn, nil)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db,
		slot.AutoMigrate,
		subscription.AutoMigrate,
		promotion.AutoMigrate,
		AutoMigrate,
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	f := &fixture{
		db:        db,
		clock:     clock.NewManual(testNow),
		customers: &MockCustomers{},
		reg:       prometheus.NewRegistry(),
	}
	m := metrics.New(f.reg)
	f.slots = slot.NewGuard(slot.GuardParams{DB: db, Log: log, Metrics: m})
	f.ledger = subscription.NewLedger(subscription.LedgerParams{DB: db, Log: log, Clock: f.clock, Metrics: m})
	f.promos = promotion.NewRepository(db, log, f.clock)
	repo := NewRepository()
	f.svc = NewService(ServiceParams{
		DB:         db,
		Repo:       repo,
		Slots:      f.slots,
		Pricing:    discount.NewCalculator(discount.CalculatorParams{Promotions: f.promos, Log: log, Metrics: m}),
		Customers:  f.customers,
		Quota:      f.ledger,
		Promotions: f.promos,
		Node:       node,
		Clock:      f.clock,
		Log:        log,
		Metrics:    m,
	})
	f.chains = NewChainTracker(ChainTrackerParams{DB: db, Repo: repo, Log: log})

	f.customers.On("DiscountPercent", mock.Anything, int64(7)).Return(0.0, nil).Maybe()
	return f
}

func (f *fixture) newSlot(t *testing.T, start time.Time, max int) *slot.TimeSlot {
	t.Helper()
	s := &slot.TimeSlot{CenterID: 1, StartTime: start, EndTime: start.Add(time.Hour), MaxBookings: max, IsActive: true}
	require.NoError(t, f.slots.Create(context.Background(), s))
	return s
}

func (f *fixture) bookedCount(t *testing.T, slotID int64) int {
	t.Helper()
	s, err := f.slots.Get(context.Background(), slotID)
	require.NoError(t, err)
	return s.BookedCount
}

// newSubscription stores an active package subscription for customer 7 and vehicle 70.
func (f *fixture) newSubscription(t *testing.T, allowances map[int64]int) string {
	t.Helper()
	sub := &subscription.Subscription{
		ID:             uuid.NewString(),
		CustomerID:     7,
		VehicleID:      70,
		PackageID:      1,
		PackageName:    "Basic care",
		Status:         subscription.StatusActive,
		PurchaseDate:   testNow.AddDate(0, -1, 0),
		StartDate:      testNow.AddDate(0, -1, 0),
		ExpirationDate: testNow.AddDate(0, 5, 0),
		Price:          1_500_000,
		PaidAmount:     1_500_000,
	}
	for serviceID, qty := range allowances {
		sub.Usages = append(sub.Usages, subscription.Usage{ServiceID: serviceID, TotalAllowed: qty, Remaining: qty})
	}
	require.NoError(t, subscription.NewRepository(f.db).CreateWithUsages(context.Background(), sub))
	return sub.ID
}

func (f *fixture) subscriptionStatus(t *testing.T, id string) subscription.Status {
	t.Helper()
	sub, err := subscription.NewRepository(f.db).GetByID(context.Background(), id)
	require.NoError(t, err)
	return sub.Status
}

func at(t time.Time) *time.Time { return &t }

func regularRequest(scheduledAt time.Time) CreateRequest {
	return CreateRequest{
		CustomerID:  7,
		VehicleID:   70,
		CenterID:    1,
		ScheduledAt: at(scheduledAt),
		Lines: []LineRequest{
			{ServiceID: 1, Source: SourceRegular, UnitPrice: 400_000, EstimatedMinutes: 45},
		},
	}
}

func (f *fixture) create(t *testing.T, req CreateRequest) *Appointment {
	t.Helper()
	a, err := f.svc.Create(context.Background(), owner, req)
	require.NoError(t, err)
	return a
}
