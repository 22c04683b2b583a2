package slot

import "servicecenter/internal/pkg/apperr"

var (
	ErrSlotNotFound = apperr.Validation("slot_not_found", "time slot does not exist")
	ErrSlotFull     = apperr.BusinessRule("slot_full", "time slot is fully booked")
	ErrSlotInactive = apperr.BusinessRule("slot_inactive", "time slot is not open for booking")
	ErrInvalidSlot  = apperr.Validation("invalid_slot", "time slot must end after it starts and allow at least one booking")
)
