package subscription

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"servicecenter/internal/domain"
	"servicecenter/internal/observability/metrics"
	"servicecenter/internal/pkg/apperr"
	"servicecenter/internal/pkg/clock"
	"servicecenter/internal/pkg/validator"
)

const cancelReasonInvoiceFailed = "invoice_failed"

// VehicleDirectory resolves the owner of a vehicle.
type VehicleDirectory interface {
	VehicleOwner(ctx context.Context, vehicleID int64) (int64, error)
}

type InvoiceRequest struct {
	SubscriptionID string
	CustomerID     int64
	PackageName    string
	Amount         int64
}

// Invoicer issues the invoice for a purchased subscription and returns its id.
type Invoicer interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (string, error)
}

type ServiceParams struct {
	fx.In

	Repo     Repository
	Vehicles VehicleDirectory
	Invoicer Invoicer
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *metrics.Metrics `optional:"true"`
}

// Service runs the subscription lifecycle. Quota consumption lives in Ledger.
type Service struct {
	repo     Repository
	vehicles VehicleDirectory
	invoicer Invoicer
	clock    clock.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewService(p ServiceParams) *Service {
	return &Service{
		repo:     p.Repo,
		vehicles: p.Vehicles,
		invoicer: p.Invoicer,
		clock:    p.Clock,
		log:      p.Log.Named("subscription.service"),
		metrics:  p.Metrics,
	}
}

// CreatePackage adds a package to the catalog.
func (s *Service) CreatePackage(ctx context.Context, actor domain.Actor, pkg *Package) error {
	if !actor.IsStaff() {
		return ErrStaffOnly
	}
	if pkg.Name == "" || pkg.ValidityDays <= 0 || pkg.Price < 0 || len(pkg.Services) == 0 {
		return ErrInvalidPackage
	}
	for _, svc := range pkg.Services {
		if svc.ServiceID <= 0 || svc.Quantity <= 0 {
			return ErrInvalidPackage
		}
	}
	return s.repo.CreatePackage(ctx, pkg)
}

// Purchase sells a package for a vehicle. A zero payment leaves the
// subscription waiting for payment; a partial one is rejected.
func (s *Service) Purchase(ctx context.Context, actor domain.Actor, req PurchaseRequest) (*Subscription, error) {
	if err := validator.Struct(req); err != nil {
		return nil, err
	}

	ownerID, err := s.vehicles.VehicleOwner(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessCustomer(ownerID) {
		return nil, ErrNotOwner.WithMessage("vehicle belongs to another customer")
	}

	pkg, err := s.repo.GetPackage(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	if !pkg.IsActive {
		return nil, ErrPackageInactive
	}
	if len(pkg.Services) == 0 || pkg.ValidityDays <= 0 {
		return nil, ErrInvalidPackage
	}

	existing, err := s.repo.FindOpen(ctx, req.VehicleID, pkg.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateActive
	}

	status := StatusActive
	switch {
	case req.PaymentAmount >= pkg.Price:
	case req.PaymentAmount == 0:
		status = StatusPendingPayment
	default:
		return nil, ErrInsufficientPayment
	}

	now := s.clock.Now()
	start := now
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}

	sub := &Subscription{
		ID:             uuid.New().String(),
		CustomerID:     ownerID,
		VehicleID:      req.VehicleID,
		PackageID:      pkg.ID,
		PackageName:    pkg.Name,
		Status:         status,
		PurchaseDate:   now,
		StartDate:      start,
		ExpirationDate: start.AddDate(0, 0, pkg.ValidityDays),
		Price:          pkg.Price,
		PaidAmount:     req.PaymentAmount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, svc := range mergeServices(pkg.Services) {
		sub.Usages = append(sub.Usages, Usage{
			ServiceID:    svc.ServiceID,
			TotalAllowed: svc.Quantity,
			Remaining:    svc.Quantity,
			UpdatedAt:    now,
		})
	}

	if err := s.repo.CreateWithUsages(ctx, sub); err != nil {
		return nil, err
	}

	invoiceID, err := s.invoicer.CreateInvoice(ctx, InvoiceRequest{
		SubscriptionID: sub.ID,
		CustomerID:     sub.CustomerID,
		PackageName:    sub.PackageName,
		Amount:         pkg.Price,
	})
	if err != nil {
		s.log.Error("invoice creation failed, cancelling subscription",
			zap.String("subscription_id", sub.ID), zap.Error(err))
		if _, cerr := s.repo.UpdateStatus(ctx, sub.ID, sub.Status, StatusCancelled, map[string]any{
			"cancel_reason": cancelReasonInvoiceFailed,
			"cancelled_at":  now,
		}); cerr != nil {
			s.log.Error("compensating cancel failed", zap.String("subscription_id", sub.ID), zap.Error(cerr))
		}
		return nil, ErrInvoiceFailed.Wrap(err)
	}
	if err := s.repo.LinkInvoice(ctx, sub.ID, invoiceID); err != nil {
		return nil, err
	}
	sub.InvoiceID = &invoiceID

	s.metrics.SubscriptionTransition(string(sub.Status))
	s.log.Info("subscription purchased",
		zap.String("subscription_id", sub.ID),
		zap.Int64("customer_id", sub.CustomerID),
		zap.Int64("package_id", pkg.ID),
		zap.String("status", string(sub.Status)))
	return sub, nil
}

// ConfirmPayment records a payment for a pending subscription and activates
// it once the package price is covered.
func (s *Service) ConfirmPayment(ctx context.Context, actor domain.Actor, id string, amount int64) (*Subscription, error) {
	if !actor.IsStaff() {
		return nil, ErrStaffOnly
	}
	if amount <= 0 {
		return nil, apperr.Validation("invalid_amount", "payment amount must be positive")
	}
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != StatusPendingPayment {
		return nil, ErrInvalidTransition
	}
	paid := sub.PaidAmount + amount
	if paid < sub.Price {
		return nil, ErrInsufficientPayment
	}
	return s.transition(ctx, sub, StatusActive, map[string]any{"paid_amount": paid})
}

// Cancel cancels a subscription. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, id, reason string) (*Subscription, error) {
	sub, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == StatusCancelled {
		return sub, nil
	}
	now := s.clock.Now()
	return s.transition(ctx, sub, StatusCancelled, map[string]any{
		"cancel_reason": reason,
		"cancelled_at":  now,
	})
}

func (s *Service) Suspend(ctx context.Context, actor domain.Actor, id, reason string) (*Subscription, error) {
	if !actor.IsStaff() {
		return nil, ErrStaffOnly
	}
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == StatusSuspended {
		return sub, nil
	}
	return s.transition(ctx, sub, StatusSuspended, map[string]any{"suspend_reason": reason})
}

// Reactivate resumes a suspended subscription. One that ran past its
// expiration date while suspended is expired instead.
func (s *Service) Reactivate(ctx context.Context, actor domain.Actor, id string) (*Subscription, error) {
	if !actor.IsStaff() {
		return nil, ErrStaffOnly
	}
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == StatusActive {
		return sub, nil
	}
	// only a suspension can be lifted; unpaid subscriptions go through ConfirmPayment
	if sub.Status != StatusSuspended {
		return nil, ErrInvalidTransition
	}
	if sub.IsExpiredAt(s.clock.Now()) {
		if _, err := s.transition(ctx, sub, StatusExpired, nil); err != nil {
			return nil, err
		}
		return nil, ErrSubscriptionExpired
	}
	return s.transition(ctx, sub, StatusActive, map[string]any{"suspend_reason": ""})
}

func (s *Service) Get(ctx context.Context, actor domain.Actor, id string) (*Subscription, error) {
	return s.getOwned(ctx, actor, id)
}

func (s *Service) ListByCustomer(ctx context.Context, actor domain.Actor, customerID int64) ([]Subscription, error) {
	if !actor.CanAccessCustomer(customerID) {
		return nil, ErrNotOwner
	}
	return s.repo.ListByCustomer(ctx, customerID)
}

// GetUsage returns remaining quota per service.
func (s *Service) GetUsage(ctx context.Context, actor domain.Actor, id string) (*UsageSummary, error) {
	sub, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	usages, err := s.repo.ListUsages(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	summary := &UsageSummary{
		SubscriptionID: sub.ID,
		PackageName:    sub.PackageName,
		Status:         sub.Status,
		ExpirationDate: sub.ExpirationDate,
		DaysRemaining:  sub.DaysRemaining(now),
		Services:       make([]ServiceUsage, 0, len(usages)),
	}
	for _, u := range usages {
		summary.Services = append(summary.Services, ServiceUsage{
			ServiceID:    u.ServiceID,
			TotalAllowed: u.TotalAllowed,
			Used:         u.Used,
			Remaining:    u.Remaining,
			LastUsedDate: u.LastUsedDate,
		})
	}
	return summary, nil
}

// ExpireOverdue is called by the batch job
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireOverdue(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("subscriptions expired", zap.Int64("count", n))
	}
	return n, nil
}

func (s *Service) getOwned(ctx context.Context, actor domain.Actor, id string) (*Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessCustomer(sub.CustomerID) {
		return nil, ErrNotOwner
	}
	return sub, nil
}

func (s *Service) transition(ctx context.Context, sub *Subscription, to Status, fields map[string]any) (*Subscription, error) {
	if !sub.Status.CanTransitionTo(to) {
		return nil, ErrInvalidTransition.WithMessage(
			"subscription cannot move from " + string(sub.Status) + " to " + string(to))
	}
	ok, err := s.repo.UpdateStatus(ctx, sub.ID, sub.Status, to, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrConflict.WithMessage("subscription changed concurrently")
	}

	s.metrics.SubscriptionTransition(string(to))
	s.log.Info("subscription transition",
		zap.String("subscription_id", sub.ID),
		zap.String("from", string(sub.Status)),
		zap.String("to", string(to)))
	return s.repo.GetByID(ctx, sub.ID)
}

// mergeServices folds repeated services of a package into one allowance.
func mergeServices(services []PackageService) []PackageService {
	merged := make([]PackageService, 0, len(services))
	index := make(map[int64]int, len(services))
	for _, svc := range services {
		if i, ok := index[svc.ServiceID]; ok {
			merged[i].Quantity += svc.Quantity
			continue
		}
		index[svc.ServiceID] = len(merged)
		merged = append(merged, svc)
	}
	return merged
}
