package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"servicecenter/internal/config"
	"servicecenter/internal/domain"
	"servicecenter/internal/domain/discount"
	"servicecenter/internal/domain/slot"
	"servicecenter/internal/observability/metrics"
	"servicecenter/internal/pkg/apperr"
	"servicecenter/internal/pkg/clock"
	"servicecenter/internal/pkg/validator"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var defaultBookingConfig = config.BookingConfig{
	MaxChainDepth:        64,
	FullRefundNotice:     24 * time.Hour,
	PartialRefundNotice:  2 * time.Hour,
	PartialRefundPercent: 50,
}

type ServiceParams struct {
	fx.In

	DB         *gorm.DB
	Repo       Repository
	Slots      *slot.Guard
	Pricing    *discount.Calculator
	Customers  CustomerDirectory
	Quota      QuotaLedger
	Promotions PromotionRedeemer `optional:"true"`
	Node       *snowflake.Node
	Clock      clock.Clock
	Config     config.BookingConfig `optional:"true"`
	Log        *zap.Logger
	Metrics    *metrics.Metrics `optional:"true"`
}

// Service drives the appointment lifecycle.
type Service struct {
	db         *gorm.DB
	repo       Repository
	slots      *slot.Guard
	pricing    *discount.Calculator
	customers  CustomerDirectory
	quota      QuotaLedger
	promotions PromotionRedeemer
	node       *snowflake.Node
	clock      clock.Clock
	cfg        config.BookingConfig
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func NewService(p ServiceParams) *Service {
	cfg := p.Config
	if cfg.FullRefundNotice <= 0 || cfg.PartialRefundNotice <= 0 {
		cfg = defaultBookingConfig
	}
	return &Service{
		db:         p.DB,
		repo:       p.Repo,
		slots:      p.Slots,
		pricing:    p.Pricing,
		customers:  p.Customers,
		quota:      p.Quota,
		promotions: p.Promotions,
		node:       p.Node,
		clock:      p.Clock,
		cfg:        cfg,
		log:        p.Log.Named("appointment.service"),
		metrics:    p.Metrics,
	}
}

// booking is a validated, priced appointment ready to be inserted.
type booking struct {
	appt      *Appointment
	slotID    *int64
	promotion string
}

// Create books an appointment. Capacity is reserved and the rows are
// inserted in one transaction.
func (s *Service) Create(ctx context.Context, actor domain.Actor, req CreateRequest) (*Appointment, error) {
	if err := validator.Struct(req); err != nil {
		return nil, err
	}
	if !actor.CanAccessCustomer(req.CustomerID) {
		return nil, ErrForbidden
	}

	b, err := s.prepare(ctx, actor, draft{
		CustomerID:            req.CustomerID,
		VehicleID:             req.VehicleID,
		CenterID:              req.CenterID,
		SlotID:                req.SlotID,
		ScheduledAt:           req.ScheduledAt,
		PackageSubscriptionID: req.PackageSubscriptionID,
		PromotionCode:         req.PromotionCode,
		Priority:              req.Priority,
		Source:                req.Source,
		Notes:                 req.Notes,
		Lines:                 req.Lines,
	}, nil)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.insert(ctx, tx, b)
	})
	if err != nil {
		s.log.Warn("appointment not created",
			zap.Int64("customer_id", req.CustomerID), zap.Error(err))
		return nil, err
	}

	s.metrics.AppointmentTransition(string(StatusPending))
	s.log.Info("appointment created",
		zap.Int64("appointment_id", b.appt.ID),
		zap.String("code", b.appt.Code),
		zap.Int64("customer_id", b.appt.CustomerID),
		zap.Int64("final_amount", b.appt.FinalAmount),
		zap.String("applied_discount", string(b.appt.AppliedDiscount)))
	return b.appt, nil
}

// draft is the common input of Create and Reschedule.
type draft struct {
	CustomerID            int64
	VehicleID             int64
	CenterID              int64
	SlotID                *int64
	ScheduledAt           *time.Time
	PackageSubscriptionID *string
	PromotionCode         string
	Priority              Priority
	Source                Channel
	Notes                 string
	Lines                 []LineRequest
}

// prepare validates a draft and prices it. replaces is the appointment being
// rescheduled, whose slot unit is about to be freed.
func (s *Service) prepare(ctx context.Context, actor domain.Actor, d draft, replaces *Appointment) (*booking, error) {
	if len(d.Lines) == 0 {
		return nil, ErrNoLines
	}
	if d.SlotID == nil && d.ScheduledAt == nil {
		return nil, ErrInvalidRequest.WithMessage("either slot_id or scheduled_at is required")
	}

	covered := make(map[int64]int)
	for _, l := range d.Lines {
		if !l.Source.Valid() {
			return nil, ErrInvalidRequest.WithMessage("unknown line source " + string(l.Source))
		}
		if l.Source != SourceSubscription {
			continue
		}
		if d.PackageSubscriptionID == nil || *d.PackageSubscriptionID == "" {
			return nil, ErrMissingPackage
		}
		if _, dup := covered[l.ServiceID]; dup {
			return nil, ErrDuplicateLine
		}
		covered[l.ServiceID] = quantityOf(l)
	}
	for serviceID, qty := range covered {
		if err := s.quota.CheckAvailable(ctx, *d.PackageSubscriptionID, d.CustomerID, d.VehicleID, serviceID, qty); err != nil {
			return nil, err
		}
	}

	scheduledAt := time.Time{}
	if d.ScheduledAt != nil {
		scheduledAt = d.ScheduledAt.UTC()
	}
	if d.SlotID != nil {
		ts, err := s.slots.Get(ctx, *d.SlotID)
		if err != nil {
			return nil, err
		}
		if ts.CenterID != d.CenterID {
			return nil, ErrInvalidRequest.WithMessage("slot belongs to another service center")
		}
		sameSlot := replaces != nil && replaces.SlotID != nil && *replaces.SlotID == *d.SlotID
		if !sameSlot {
			ok, err := s.slots.CanBook(ctx, *d.SlotID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, slot.ErrSlotFull
			}
		}
		scheduledAt = ts.StartTime
	}

	percent, err := s.customers.DiscountPercent(ctx, d.CustomerID)
	if err != nil {
		return nil, err
	}

	lines := make([]ServiceLine, len(d.Lines))
	pricing := make([]discount.Line, len(d.Lines))
	for i, l := range d.Lines {
		lines[i] = ServiceLine{
			Position:         i + 1,
			ServiceID:        l.ServiceID,
			Source:           l.Source,
			Quantity:         quantityOf(l),
			ListPrice:        l.UnitPrice,
			UnitPrice:        l.UnitPrice,
			EstimatedMinutes: l.EstimatedMinutes,
			Note:             l.Note,
		}
		if l.Source == SourceSubscription {
			lines[i].UnitPrice = 0
		}
		pricing[i] = discount.Line{
			ServiceID: l.ServiceID,
			Quantity:  lines[i].Quantity,
			UnitPrice: l.UnitPrice,
			Covered:   l.Source == SourceSubscription,
		}
	}

	res, err := s.pricing.Calculate(ctx, discount.Input{
		CustomerID:          d.CustomerID,
		CenterID:            d.CenterID,
		CustomerTypePercent: percent,
		PromotionCode:       d.PromotionCode,
		Lines:               pricing,
	})
	if err != nil {
		return nil, err
	}
	breakdown, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}

	priority := d.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	source := d.Source
	if source == "" {
		source = ChannelWeb
	}

	now := s.clock.Now()
	appt := &Appointment{
		Code:                  "APT-" + s.node.Generate().String(),
		CustomerID:            d.CustomerID,
		VehicleID:             d.VehicleID,
		CenterID:              d.CenterID,
		SlotID:                d.SlotID,
		Status:                StatusPending,
		Priority:              priority,
		Source:                source,
		ScheduledAt:           scheduledAt,
		PromotionCode:         strings.ToUpper(strings.TrimSpace(d.PromotionCode)),
		OriginalAmount:        res.OriginalTotal,
		DiscountAmount:        res.FinalDiscount,
		FinalAmount:           res.FinalTotal,
		AppliedDiscount:       res.Applied,
		PricingBreakdown:      datatypes.JSON(breakdown),
		Notes:                 d.Notes,
		CreatedAt:             now,
		UpdatedAt:             now,
		CreatedBy:             actor.UserID,
		UpdatedBy:             actor.UserID,
		Lines:                 lines,
	}
	if len(covered) > 0 {
		appt.PackageSubscriptionID = d.PackageSubscriptionID
	}

	b := &booking{appt: appt, slotID: d.SlotID}
	if res.Applied == discount.TypePromotion {
		b.promotion = res.PromotionCode
	}
	return b, nil
}

// insert reserves capacity, redeems the promotion and stores the rows on tx.
func (s *Service) insert(ctx context.Context, tx *gorm.DB, b *booking) error {
	if b.slotID != nil {
		if err := s.slots.Reserve(ctx, tx, *b.slotID); err != nil {
			return err
		}
	}
	if b.promotion != "" && s.promotions != nil {
		if err := s.promotions.Redeem(ctx, tx, b.promotion); err != nil {
			return err
		}
	}
	return s.repo.Insert(ctx, tx, b.appt)
}

func quantityOf(l LineRequest) int {
	if l.Quantity <= 0 {
		return 1
	}
	return l.Quantity
}

// Confirm moves a pending appointment to confirmed. Confirming twice
// returns the appointment unchanged.
func (s *Service) Confirm(ctx context.Context, actor domain.Actor, id int64, method string) (*Appointment, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, ErrInvalidRequest.WithMessage("confirmation method is required")
	}
	a, err := s.getAuthorized(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusConfirmed {
		return a, nil
	}

	now := s.clock.Now()
	err = s.transition(ctx, s.db, a, StatusConfirmed, actor, map[string]any{
		"confirmation_method": method,
		"confirmed_at":        now,
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, s.db, id)
}

// Cancel cancels a non-terminal appointment and derives the refund tier
// from the notice given before the scheduled start.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, id int64, reason string) (*CancellationResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	a, err := s.getAuthorized(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusCancelled {
		return cancellationOf(a), nil
	}

	now := s.clock.Now()
	notice := a.ScheduledAt.Sub(now)
	refund := s.refundPercent(notice)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(ctx, tx, a, StatusCancelled, actor, map[string]any{
			"cancellation_reason": reason,
			"cancelled_at":        now,
			"refund_percent":      refund,
		}); err != nil {
			return err
		}
		return s.releaseSlot(ctx, tx, a)
	})
	if err != nil {
		return nil, err
	}

	return &CancellationResult{
		AppointmentID: a.ID,
		Status:        StatusCancelled,
		RefundPercent: refund,
		Notice:        notice.Round(time.Minute).String(),
		CancelledAt:   now,
	}, nil
}

func cancellationOf(a *Appointment) *CancellationResult {
	res := &CancellationResult{AppointmentID: a.ID, Status: a.Status}
	if a.RefundPercent != nil {
		res.RefundPercent = *a.RefundPercent
	}
	if a.CancelledAt != nil {
		res.CancelledAt = *a.CancelledAt
		res.Notice = a.ScheduledAt.Sub(*a.CancelledAt).Round(time.Minute).String()
	}
	return res
}

// refundPercent maps the notice before the scheduled start to a refund tier.
func (s *Service) refundPercent(notice time.Duration) int {
	switch {
	case notice >= s.cfg.FullRefundNotice:
		return 100
	case notice >= s.cfg.PartialRefundNotice:
		return s.cfg.PartialRefundPercent
	default:
		return 0
	}
}

// MarkNoShow records that the customer did not arrive. Marking twice is a no-op.
func (s *Service) MarkNoShow(ctx context.Context, actor domain.Actor, id int64) (*Appointment, error) {
	if !actor.IsStaff() {
		return nil, ErrStaffOnly
	}
	a, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusNoShow {
		return a, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(ctx, tx, a, StatusNoShow, actor, map[string]any{"no_show": true}); err != nil {
			return err
		}
		return s.releaseSlot(ctx, tx, a)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, s.db, id)
}

// Complete finishes a confirmed appointment and settles its subscription
// lines against the package quota. A line the quota can no longer cover is
// billed as an extra at list price. Calling Complete again settles whatever
// a previous call left unsettled.
func (s *Service) Complete(ctx context.Context, actor domain.Actor, id int64) (*CompletionResult, error) {
	if !actor.IsStaff() {
		return nil, ErrStaffOnly
	}
	a, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusCompleted {
		if err := s.transition(ctx, s.db, a, StatusCompleted, actor, map[string]any{
			"completed_at": s.clock.Now(),
		}); err != nil {
			return nil, err
		}
	}

	settlements := make([]LineSettlement, 0)
	for _, line := range a.Lines {
		if line.Source != SourceSubscription || line.QuotaSettled {
			continue
		}
		st, err := s.settle(ctx, a, line)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, st)
	}

	a, err = s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &CompletionResult{Appointment: a, Settlements: settlements}, nil
}

func (s *Service) settle(ctx context.Context, a *Appointment, line ServiceLine) (LineSettlement, error) {
	st := LineSettlement{LineID: line.ID, ServiceID: line.ServiceID}
	log := s.log.With(
		zap.Int64("appointment_id", a.ID),
		zap.Int64("line_id", line.ID),
		zap.Int64("service_id", line.ServiceID))

	deducted := false
	if a.PackageSubscriptionID != nil {
		ok, err := s.quota.TryDeductUsage(ctx, *a.PackageSubscriptionID, line.ServiceID, line.Quantity, a.ID)
		if err != nil {
			log.Error("quota deduction failed", zap.Error(err))
			return st, err
		}
		deducted = ok
	}

	var rebill *ServiceLine
	if !deducted {
		rebill = &ServiceLine{UnitPrice: line.ListPrice, Quantity: line.Quantity}
		log.Warn("package quota unavailable, billing line as extra", zap.Int64("list_price", line.ListPrice))
	}
	if err := s.repo.SettleLine(ctx, s.db, a.ID, line.ID, rebill); err != nil {
		return st, err
	}

	st.Deducted = deducted
	st.Source = SourceSubscription
	if rebill != nil {
		st.Source = SourceExtra
		st.Charged = rebill.Total()
	}
	return st, nil
}

// Reschedule replaces an appointment with a new one that remembers where it
// came from. The old appointment is kept in the rescheduled status.
func (s *Service) Reschedule(ctx context.Context, actor domain.Actor, oldID int64, req RescheduleRequest) (*Appointment, error) {
	if err := validator.Struct(req); err != nil {
		return nil, err
	}
	old, err := s.getAuthorized(ctx, actor, oldID)
	if err != nil {
		return nil, err
	}
	if !old.Status.CanTransitionTo(StatusRescheduled) {
		return nil, ErrInvalidTransition.WithMessage("cannot reschedule a " + string(old.Status) + " appointment")
	}

	lines := req.Lines
	if len(lines) == 0 {
		lines = make([]LineRequest, len(old.Lines))
		for i, l := range old.Lines {
			lines[i] = LineRequest{
				ServiceID:        l.ServiceID,
				Source:           l.Source,
				Quantity:         l.Quantity,
				UnitPrice:        l.ListPrice,
				EstimatedMinutes: l.EstimatedMinutes,
				Note:             l.Note,
			}
		}
	}
	code := req.PromotionCode
	if code == "" {
		code = old.PromotionCode
	}
	notes := req.Notes
	if notes == "" {
		notes = old.Notes
	}
	d := draft{
		CustomerID:            old.CustomerID,
		VehicleID:             old.VehicleID,
		CenterID:              old.CenterID,
		SlotID:                req.SlotID,
		ScheduledAt:           req.ScheduledAt,
		PackageSubscriptionID: old.PackageSubscriptionID,
		PromotionCode:         code,
		Priority:              old.Priority,
		Source:                old.Source,
		Notes:                 notes,
		Lines:                 lines,
	}
	if d.SlotID == nil && d.ScheduledAt == nil {
		d.SlotID = old.SlotID
	}

	b, err := s.prepare(ctx, actor, d, old)
	if err != nil {
		return nil, err
	}
	b.appt.RescheduledFromID = &old.ID
	// a promotion already redeemed by the old appointment is carried over
	if b.promotion != "" && old.AppliedDiscount == discount.TypePromotion && strings.EqualFold(b.promotion, old.PromotionCode) {
		b.promotion = ""
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.LockByID(ctx, tx, old.ID)
		if err != nil {
			return err
		}
		if locked.Status != old.Status {
			return apperr.ErrConflict.WithMessage("appointment changed concurrently")
		}
		if err := s.transition(ctx, tx, locked, StatusRescheduled, actor, nil); err != nil {
			return err
		}
		if err := s.releaseSlot(ctx, tx, locked); err != nil {
			return err
		}
		return s.insert(ctx, tx, b)
	})
	if err != nil {
		s.log.Warn("reschedule rolled back", zap.Int64("appointment_id", oldID), zap.Error(err))
		return nil, err
	}

	s.metrics.AppointmentTransition(string(StatusPending))
	s.log.Info("appointment rescheduled",
		zap.Int64("appointment_id", oldID),
		zap.Int64("new_appointment_id", b.appt.ID))
	return b.appt, nil
}

// DeleteIfPossible hard-deletes an appointment that is still pending.
func (s *Service) DeleteIfPossible(ctx context.Context, actor domain.Actor, id int64) error {
	a, err := s.getAuthorized(ctx, actor, id)
	if err != nil {
		return err
	}
	if a.Status != StatusPending {
		return ErrNotDeletable
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := s.repo.DeletePending(ctx, tx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNotDeletable
		}
		return s.releaseSlot(ctx, tx, a)
	})
	if err != nil {
		return err
	}
	s.log.Info("appointment deleted", zap.Int64("appointment_id", id), zap.Int64("actor_id", actor.UserID))
	return nil
}

func (s *Service) Get(ctx context.Context, actor domain.Actor, id int64) (*Appointment, error) {
	return s.getAuthorized(ctx, actor, id)
}

func (s *Service) ListByCustomer(ctx context.Context, actor domain.Actor, customerID int64, statuses []Status, limit, offset int) (*ListResponse, error) {
	if !actor.CanAccessCustomer(customerID) {
		return nil, ErrForbidden
	}
	for _, st := range statuses {
		if !st.Valid() {
			return nil, ErrInvalidRequest.WithMessage("unknown status " + string(st))
		}
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	items, err := s.repo.ListByCustomer(ctx, s.db, ListFilter{
		CustomerID: customerID,
		Statuses:   statuses,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, err
	}
	return &ListResponse{Items: items, Limit: limit, Offset: offset}, nil
}

// SlotAvailability reports the slot and whether it can take another booking.
func (s *Service) SlotAvailability(ctx context.Context, slotID int64) (*slot.TimeSlot, bool, error) {
	ok, err := s.slots.CanBook(ctx, slotID)
	if err != nil {
		return nil, false, err
	}
	ts, err := s.slots.Get(ctx, slotID)
	if err != nil {
		return nil, false, err
	}
	return ts, ok, nil
}

const maxSlotWindow = 31 * 24 * time.Hour

// ListAvailableSlots returns bookable slots of a center starting in
// [from, to). A zero from means now; a zero to means one week after from.
func (s *Service) ListAvailableSlots(ctx context.Context, centerID int64, from, to time.Time) ([]slot.TimeSlot, error) {
	if centerID <= 0 {
		return nil, ErrInvalidRequest.WithMessage("center_id is required")
	}
	if from.IsZero() {
		from = s.clock.Now()
	}
	if to.IsZero() {
		to = from.Add(7 * 24 * time.Hour)
	}
	if !to.After(from) || to.Sub(from) > maxSlotWindow {
		return nil, ErrInvalidRequest.WithMessage("slot window must be positive and at most 31 days")
	}
	return s.slots.ListAvailable(ctx, centerID, from, to)
}

// RecountSlot rebuilds the booked counter of a slot from its appointments.
func (s *Service) RecountSlot(ctx context.Context, actor domain.Actor, slotID int64) (*slot.TimeSlot, error) {
	if !actor.IsStaff() {
		return nil, ErrStaffOnly
	}
	return s.slots.Recount(ctx, slotID, ActiveCountQuery(slotID))
}

func (s *Service) getAuthorized(ctx context.Context, actor domain.Actor, id int64) (*Appointment, error) {
	a, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessCustomer(a.CustomerID) {
		return nil, ErrForbidden
	}
	return a, nil
}

// transition applies a status change with a conditional update on db.
func (s *Service) transition(ctx context.Context, db *gorm.DB, a *Appointment, to Status, actor domain.Actor, fields map[string]any) error {
	if !a.Status.CanTransitionTo(to) {
		s.log.Warn("invalid status transition",
			zap.Int64("appointment_id", a.ID),
			zap.String("from", string(a.Status)),
			zap.String("to", string(to)))
		return ErrInvalidTransition.WithMessage("appointment cannot move from " + string(a.Status) + " to " + string(to))
	}

	updates := map[string]any{"updated_at": s.clock.Now(), "updated_by": actor.UserID}
	for k, v := range fields {
		updates[k] = v
	}
	ok, err := s.repo.UpdateStatus(ctx, db, a.ID, a.Status, to, updates)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrConflict.WithMessage("appointment changed concurrently")
	}

	s.metrics.AppointmentTransition(string(to))
	s.log.Info("appointment transition",
		zap.Int64("appointment_id", a.ID),
		zap.String("from", string(a.Status)),
		zap.String("to", string(to)),
		zap.Int64("actor_id", actor.UserID))
	return nil
}

func (s *Service) releaseSlot(ctx context.Context, tx *gorm.DB, a *Appointment) error {
	if a.SlotID == nil || !a.Status.IsActive() {
		return nil
	}
	if err := s.slots.Release(ctx, tx, *a.SlotID); err != nil {
		if errors.Is(err, slot.ErrSlotNotFound) {
			return nil
		}
		return err
	}
	return nil
}
