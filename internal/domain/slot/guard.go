package slot

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"servicecenter/internal/observability/metrics"
	"servicecenter/internal/pkg/apperr"
)

type GuardParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// Guard enforces slot capacity. Reserve and Release take the caller's
// transaction so the counter moves together with the appointment row.
type Guard struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewGuard(p GuardParams) *Guard {
	return &Guard{
		db:      p.DB,
		log:     p.Log.Named("slot.guard"),
		metrics: p.Metrics,
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&TimeSlot{})
}

func (g *Guard) Create(ctx context.Context, s *TimeSlot) error {
	if s.MaxBookings <= 0 || !s.EndTime.After(s.StartTime) {
		return ErrInvalidSlot
	}
	s.BookedCount = 0
	if err := g.db.WithContext(ctx).Create(s).Error; err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (g *Guard) Get(ctx context.Context, slotID int64) (*TimeSlot, error) {
	return getSlot(g.db.WithContext(ctx), slotID)
}

// CanBook reports whether the slot still has room. A full or inactive slot
// is not an error.
func (g *Guard) CanBook(ctx context.Context, slotID int64) (bool, error) {
	s, err := g.Get(ctx, slotID)
	if err != nil {
		return false, err
	}
	if !s.HasCapacity() {
		g.metrics.SlotRejected("precheck")
		return false, nil
	}
	return true, nil
}

// Reserve takes one unit of capacity with a conditional increment.
func (g *Guard) Reserve(ctx context.Context, tx *gorm.DB, slotID int64) error {
	res := tx.WithContext(ctx).
		Model(&TimeSlot{}).
		Where("id = ? AND is_active = ? AND booked_count < max_bookings", slotID, true).
		UpdateColumn("booked_count", gorm.Expr("booked_count + ?", 1))
	if res.Error != nil {
		return apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	s, err := getSlot(tx.WithContext(ctx), slotID)
	if err != nil {
		return err
	}
	g.metrics.SlotRejected("reserve")
	if !s.IsActive {
		return ErrSlotInactive
	}
	g.log.Warn("slot full on reserve", zap.Int64("slot_id", slotID), zap.Int("max_bookings", s.MaxBookings))
	return ErrSlotFull
}

// Release returns one unit of capacity. The counter never drops below zero.
func (g *Guard) Release(ctx context.Context, tx *gorm.DB, slotID int64) error {
	res := tx.WithContext(ctx).
		Model(&TimeSlot{}).
		Where("id = ? AND booked_count > 0", slotID).
		UpdateColumn("booked_count", gorm.Expr("booked_count - ?", 1))
	if res.Error != nil {
		return apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		g.log.Warn("release on empty slot counter", zap.Int64("slot_id", slotID))
	}
	return nil
}

// Recount rewrites booked_count from activeCount, a query returning the
// number of active bookings in the slot.
func (g *Guard) Recount(ctx context.Context, slotID int64, activeCount sq.SelectBuilder) (*TimeSlot, error) {
	query, args, err := sq.Update(TimeSlot{}.TableName()).
		Set("booked_count", activeCount).
		Where(sq.Eq{"id": slotID}).
		ToSql()
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	var s *TimeSlot
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(query, args...)
		if res.Error != nil {
			return apperr.Persistence(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSlotNotFound
		}
		s, err = getSlot(tx, slotID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.BookedCount > s.MaxBookings {
		g.log.Warn("slot overbooked after recount",
			zap.Int64("slot_id", slotID),
			zap.Int("booked_count", s.BookedCount),
			zap.Int("max_bookings", s.MaxBookings))
	}
	return s, nil
}

// ListAvailable returns active slots of a center starting in [from, to) that still have room.
func (g *Guard) ListAvailable(ctx context.Context, centerID int64, from, to time.Time) ([]TimeSlot, error) {
	query, args, err := sq.Select("*").
		From(TimeSlot{}.TableName()).
		Where(sq.Eq{"center_id": centerID, "is_active": true}).
		Where(sq.GtOrEq{"start_time": from}).
		Where(sq.Lt{"start_time": to}).
		Where("booked_count < max_bookings").
		OrderBy("start_time ASC").
		ToSql()
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	var slots []TimeSlot
	if err := g.db.WithContext(ctx).Raw(query, args...).Scan(&slots).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	return slots, nil
}

func getSlot(db *gorm.DB, slotID int64) (*TimeSlot, error) {
	var s TimeSlot
	if err := db.Where("id = ?", slotID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, apperr.Persistence(err)
	}
	return &s, nil
}
