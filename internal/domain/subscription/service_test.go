package subscription

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"servicecenter/internal/domain"
	"servicecenter/internal/observability/metrics"
	"servicecenter/internal/pkg/apperr"
	"servicecenter/internal/pkg/clock"
)

var (
	customer = domain.Actor{UserID: 7, Role: domain.RoleCustomer}
	stranger = domain.Actor{UserID: 8, Role: domain.RoleCustomer}
	staff    = domain.Actor{UserID: 1, Role: domain.RoleStaff}
)

type serviceFixture struct {
	db       *gorm.DB
	svc      *Service
	clock    *clock.Manual
	vehicles *MockVehicles
	invoicer *MockInvoicer
	pkg      *Package
}

func setupService(t *testing.T) *serviceFixture {
	t.Helper()
	db := setupDB(t)
	f := &serviceFixture{
		db:       db,
		clock:    clock.NewManual(testNow),
		vehicles: &MockVehicles{},
		invoicer: &MockInvoicer{},
	}
	f.svc = NewService(ServiceParams{
		Repo:     NewRepository(db),
		Vehicles: f.vehicles,
		Invoicer: f.invoicer,
		Clock:    f.clock,
		Log:      zap.NewNop(),
		Metrics:  metrics.New(prometheus.NewRegistry()),
	})

	f.pkg = &Package{
		Name:         "Basic care",
		Price:        1_500_000,
		ValidityDays: 180,
		IsActive:     true,
		Services: []PackageService{
			{ServiceID: 10, Quantity: 2},
			{ServiceID: 11, Quantity: 1},
			{ServiceID: 10, Quantity: 1},
		},
	}
	require.NoError(t, f.svc.CreatePackage(context.Background(), staff, f.pkg))

	f.vehicles.On("VehicleOwner", mock.Anything, int64(70)).Return(int64(7), nil).Maybe()
	return f
}

func (f *serviceFixture) invoiceOK() {
	f.invoicer.On("CreateInvoice", mock.Anything, mock.Anything).Return("inv-1", nil).Maybe()
}

func (f *serviceFixture) purchase(t *testing.T, paid int64) *Subscription {
	t.Helper()
	sub, err := f.svc.Purchase(context.Background(), customer, PurchaseRequest{
		PackageID:     f.pkg.ID,
		VehicleID:     70,
		PaymentAmount: paid,
	})
	require.NoError(t, err)
	return sub
}

func TestPurchase_FullPaymentActivates(t *testing.T) {
	f := setupService(t)
	f.invoiceOK()

	sub := f.purchase(t, 1_500_000)

	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, int64(7), sub.CustomerID)
	assert.True(t, sub.ExpirationDate.Equal(testNow.AddDate(0, 0, 180)))
	require.NotNil(t, sub.InvoiceID)
	assert.Equal(t, "inv-1", *sub.InvoiceID)

	summary, err := f.svc.GetUsage(context.Background(), customer, sub.ID)
	require.NoError(t, err)
	require.Len(t, summary.Services, 2)
	assert.Equal(t, int64(10), summary.Services[0].ServiceID)
	assert.Equal(t, 3, summary.Services[0].TotalAllowed)
	assert.Equal(t, 3, summary.Services[0].Remaining)
	assert.Equal(t, 1, summary.Services[1].Remaining)
	assert.Equal(t, 180, summary.DaysRemaining)

	f.invoicer.AssertCalled(t, "CreateInvoice", mock.Anything, InvoiceRequest{
		SubscriptionID: sub.ID,
		CustomerID:     7,
		PackageName:    "Basic care",
		Amount:         1_500_000,
	})
}

func TestPurchase_PaymentRules(t *testing.T) {
	f := setupService(t)
	f.invoiceOK()
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, customer, PurchaseRequest{PackageID: f.pkg.ID, VehicleID: 70, PaymentAmount: 100})
	assert.ErrorIs(t, err, ErrInsufficientPayment)

	sub := f.purchase(t, 0)
	assert.Equal(t, StatusPendingPayment, sub.Status)

	_, err = f.svc.Purchase(ctx, customer, PurchaseRequest{PackageID: f.pkg.ID, VehicleID: 70, PaymentAmount: 1_500_000})
	assert.ErrorIs(t, err, ErrDuplicateActive)

	_, err = f.svc.ConfirmPayment(ctx, staff, sub.ID, 1_000)
	assert.ErrorIs(t, err, ErrInsufficientPayment)

	_, err = f.svc.ConfirmPayment(ctx, customer, sub.ID, 1_500_000)
	assert.ErrorIs(t, err, ErrStaffOnly)

	active, err := f.svc.ConfirmPayment(ctx, staff, sub.ID, 1_500_000)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, active.Status)
	assert.Equal(t, int64(1_500_000), active.PaidAmount)

	_, err = f.svc.ConfirmPayment(ctx, staff, sub.ID, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPurchase_Rejections(t *testing.T) {
	f := setupService(t)
	f.invoiceOK()
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, stranger, PurchaseRequest{PackageID: f.pkg.ID, VehicleID: 70})
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = f.svc.Purchase(ctx, customer, PurchaseRequest{PackageID: 0, VehicleID: 70})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.svc.Purchase(ctx, customer, PurchaseRequest{PackageID: 999, VehicleID: 70})
	assert.ErrorIs(t, err, ErrPackageNotFound)

	require.NoError(t, f.db.Model(&Package{}).Where("id = ?", f.pkg.ID).Update("is_active", false).Error)
	_, err = f.svc.Purchase(ctx, customer, PurchaseRequest{PackageID: f.pkg.ID, VehicleID: 70})
	assert.ErrorIs(t, err, ErrPackageInactive)

	f.invoicer.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything)
}

func TestPurchase_InvoiceFailureCancels(t *testing.T) {
	f := setupService(t)
	f.invoicer.On("CreateInvoice", mock.Anything, mock.Anything).Return("", errors.New("billing down")).Once()
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, customer, PurchaseRequest{PackageID: f.pkg.ID, VehicleID: 70, PaymentAmount: 1_500_000})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvoiceFailed)

	subs, err := f.svc.ListByCustomer(ctx, customer, 7)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, StatusCancelled, subs[0].Status)
	assert.Equal(t, cancelReasonInvoiceFailed, subs[0].CancelReason)

	// a cancelled subscription no longer blocks a new purchase
	f.invoiceOK()
	sub := f.purchase(t, 1_500_000)
	assert.Equal(t, StatusActive, sub.Status)
}

func TestLifecycle_SuspendReactivateCancel(t *testing.T) {
	f := setupService(t)
	f.invoiceOK()
	ctx := context.Background()
	sub := f.purchase(t, 1_500_000)

	_, err := f.svc.Suspend(ctx, customer, sub.ID, "paperwork")
	assert.ErrorIs(t, err, ErrStaffOnly)

	got, err := f.svc.Suspend(ctx, staff, sub.ID, "paperwork")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, got.Status)
	assert.Equal(t, "paperwork", got.SuspendReason)

	got, err = f.svc.Suspend(ctx, staff, sub.ID, "again")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, got.Status)

	got, err = f.svc.Reactivate(ctx, staff, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)

	_, err = f.svc.Cancel(ctx, stranger, sub.ID, "not mine")
	assert.ErrorIs(t, err, ErrNotOwner)

	got, err = f.svc.Cancel(ctx, customer, sub.ID, "moving away")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)

	got, err = f.svc.Cancel(ctx, customer, sub.ID, "twice")
	require.NoError(t, err)
	assert.Equal(t, "moving away", got.CancelReason)

	for _, op := range []func() (*Subscription, error){
		func() (*Subscription, error) { return f.svc.Suspend(ctx, staff, sub.ID, "x") },
		func() (*Subscription, error) { return f.svc.Reactivate(ctx, staff, sub.ID) },
	} {
		_, err := op()
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
}

func TestReactivate_ExpiredWhileSuspended(t *testing.T) {
	f := setupService(t)
	f.invoiceOK()
	ctx := context.Background()
	sub := f.purchase(t, 1_500_000)

	_, err := f.svc.Suspend(ctx, staff, sub.ID, "")
	require.NoError(t, err)
	f.clock.Set(sub.ExpirationDate.Add(1))

	_, err = f.svc.Reactivate(ctx, staff, sub.ID)
	assert.ErrorIs(t, err, ErrSubscriptionExpired)

	got, err := f.svc.Get(ctx, customer, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
}

func TestReactivate_UnpaidIsRejected(t *testing.T) {
	f := setupService(t)
	f.invoiceOK()
	ctx := context.Background()
	sub := f.purchase(t, 0)
	require.Equal(t, StatusPendingPayment, sub.Status)

	_, err := f.svc.Reactivate(ctx, staff, sub.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := f.svc.Get(ctx, staff, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingPayment, got.Status)
	assert.Zero(t, got.PaidAmount)
}

func TestExpireOverdue(t *testing.T) {
	f := setupService(t)
	f.invoiceOK()
	ctx := context.Background()
	sub := f.purchase(t, 1_500_000)

	n, err := f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Set(sub.ExpirationDate)
	n, err = f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := f.svc.Get(ctx, staff, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
}

func TestStatusTransitions_TerminalStatesAreClosed(t *testing.T) {
	all := []Status{StatusPendingPayment, StatusActive, StatusSuspended, StatusCancelled, StatusExpired, StatusFullyUsed}
	for _, from := range []Status{StatusCancelled, StatusExpired, StatusFullyUsed} {
		assert.True(t, from.IsTerminal())
		for _, to := range all {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, StatusPendingPayment.CanTransitionTo(StatusActive))
	assert.False(t, StatusPendingPayment.CanTransitionTo(StatusFullyUsed))
	assert.False(t, Status("refunded").Valid())
}

func TestCreatePackage_Validates(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.CreatePackage(ctx, customer, &Package{Name: "x"}), ErrStaffOnly)
	assert.ErrorIs(t, f.svc.CreatePackage(ctx, staff, &Package{Name: "x", ValidityDays: 30}), ErrInvalidPackage)
	assert.ErrorIs(t, f.svc.CreatePackage(ctx, staff, &Package{
		Name: "x", ValidityDays: 30, Services: []PackageService{{ServiceID: 1, Quantity: 0}},
	}), ErrInvalidPackage)
}
