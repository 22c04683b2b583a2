package appointment

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"servicecenter/internal/pkg/apperr"
)

// Repository persists appointments. Every method takes the handle to run
// on so that callers can compose them inside one transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, a *Appointment) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Appointment, error)
	LockByID(ctx context.Context, db *gorm.DB, id int64) (*Appointment, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id int64, from, to Status, fields map[string]any) (bool, error)
	DeletePending(ctx context.Context, db *gorm.DB, id int64) (bool, error)
	SettleLine(ctx context.Context, db *gorm.DB, appointmentID, lineID int64, rebill *ServiceLine) error
	ListByCustomer(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Appointment, error)
	FindLinks(ctx context.Context, db *gorm.DB, ids []int64) ([]ChainLink, error)
	FindChildren(ctx context.Context, db *gorm.DB, parentIDs []int64) ([]ChainLink, error)
}

type ListFilter struct {
	CustomerID int64
	Statuses   []Status
	Limit      int
	Offset     int
}

// ActiveCountQuery counts the appointments holding capacity in a slot.
func ActiveCountQuery(slotID int64) sq.SelectBuilder {
	return sq.Select("COUNT(*)").
		From(Appointment{}.TableName()).
		Where(sq.Eq{"slot_id": slotID, "status": ActiveStatuses})
}

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Appointment{}, &ServiceLine{})
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, a *Appointment) error {
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id int64) (*Appointment, error) {
	return r.find(db.WithContext(ctx), id)
}

// LockByID loads the appointment holding a row lock until the transaction ends.
func (r *repository) LockByID(ctx context.Context, db *gorm.DB, id int64) (*Appointment, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repository) find(db *gorm.DB, id int64) (*Appointment, error) {
	var a Appointment
	err := db.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, apperr.Persistence(err)
	}
	return &a, nil
}

// UpdateStatus moves the appointment from one status to another and reports
// false when it was no longer in the from status.
func (r *repository) UpdateStatus(ctx context.Context, db *gorm.DB, id int64, from, to Status, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := db.WithContext(ctx).
		Model(&Appointment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, apperr.Persistence(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DeletePending(ctx context.Context, db *gorm.DB, id int64) (bool, error) {
	res := db.WithContext(ctx).Where("id = ? AND status = ?", id, StatusPending).Delete(&Appointment{})
	if res.Error != nil {
		return false, apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	// lines are removed explicitly; SQLite only cascades with foreign_keys on
	if err := db.WithContext(ctx).Where("appointment_id = ?", id).Delete(&ServiceLine{}).Error; err != nil {
		return false, apperr.Persistence(err)
	}
	return true, nil
}

// SettleLine marks a subscription line as settled. A non-nil rebill turns the
// line into a billed extra and adds its total to the appointment amount.
func (r *repository) SettleLine(ctx context.Context, db *gorm.DB, appointmentID, lineID int64, rebill *ServiceLine) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"quota_settled": true}
		if rebill != nil {
			updates["source"] = SourceExtra
			updates["unit_price"] = rebill.UnitPrice
		}
		res := tx.Model(&ServiceLine{}).
			Where("id = ? AND appointment_id = ? AND quota_settled = ?", lineID, appointmentID, false).
			Updates(updates)
		if res.Error != nil {
			return apperr.Persistence(res.Error)
		}
		if res.RowsAffected == 0 || rebill == nil {
			return nil
		}
		err := tx.Model(&Appointment{}).
			Where("id = ?", appointmentID).
			UpdateColumn("final_amount", gorm.Expr("final_amount + ?", rebill.Total())).Error
		if err != nil {
			return apperr.Persistence(err)
		}
		return nil
	})
}

func (r *repository) ListByCustomer(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Appointment, error) {
	query := sq.Select("*").
		From(Appointment{}.TableName()).
		Where(sq.Eq{"customer_id": filter.CustomerID}).
		OrderBy("scheduled_at DESC", "id DESC")
	if len(filter.Statuses) > 0 {
		query = query.Where(sq.Eq{"status": filter.Statuses})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	var items []Appointment
	if err := db.WithContext(ctx).Raw(stmt, args...).Scan(&items).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	if len(items) == 0 {
		return items, nil
	}

	ids := make([]int64, len(items))
	index := make(map[int64]int, len(items))
	for i, a := range items {
		ids[i] = a.ID
		index[a.ID] = i
	}
	var lines []ServiceLine
	if err := db.WithContext(ctx).Where("appointment_id IN ?", ids).Order("appointment_id, position").Find(&lines).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	for _, l := range lines {
		i := index[l.AppointmentID]
		items[i].Lines = append(items[i].Lines, l)
	}
	return items, nil
}

func (r *repository) FindLinks(ctx context.Context, db *gorm.DB, ids []int64) ([]ChainLink, error) {
	return r.links(db.WithContext(ctx).Where("id IN ?", ids))
}

func (r *repository) FindChildren(ctx context.Context, db *gorm.DB, parentIDs []int64) ([]ChainLink, error) {
	return r.links(db.WithContext(ctx).Where("rescheduled_from_id IN ?", parentIDs))
}

func (r *repository) links(db *gorm.DB) ([]ChainLink, error) {
	var links []ChainLink
	err := db.Model(&Appointment{}).
		Select("id", "code", "status", "scheduled_at", "rescheduled_from_id").
		Order("created_at ASC, id ASC").
		Scan(&links).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return links, nil
}
