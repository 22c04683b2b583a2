package slot

import "time"

// TimeSlot is a bookable window at a service center. BookedCount mirrors the
// number of active appointments in the slot and never exceeds MaxBookings.
type TimeSlot struct {
	ID          int64     `gorm:"column:id;primaryKey" json:"id"`
	CenterID    int64     `gorm:"column:center_id;index:idx_slots_center_start" json:"center_id"`
	StartTime   time.Time `gorm:"column:start_time;index:idx_slots_center_start" json:"start_time"`
	EndTime     time.Time `gorm:"column:end_time" json:"end_time"`
	MaxBookings int       `gorm:"column:max_bookings;not null" json:"max_bookings"`
	BookedCount int       `gorm:"column:booked_count;not null;default:0" json:"booked_count"`
	IsActive    bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (TimeSlot) TableName() string { return "time_slots" }

func (s *TimeSlot) Available() int {
	if !s.IsActive || s.BookedCount >= s.MaxBookings {
		return 0
	}
	return s.MaxBookings - s.BookedCount
}

func (s *TimeSlot) HasCapacity() bool { return s.Available() > 0 }
