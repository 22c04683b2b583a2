package appointment

import (
	"github.com/gin-gonic/gin"

	"servicecenter/internal/middleware"
)

// RegisterRoutes mounts appointment and slot endpoints on an authenticated group.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	appts := r.Group("/appointments")
	{
		appts.POST("", h.Create)
		appts.GET("", h.List)
		appts.GET("/:id", h.Get)
		appts.GET("/:id/chain", h.Chain)
		appts.POST("/:id/confirm", h.Confirm)
		appts.POST("/:id/cancel", h.Cancel)
		appts.POST("/:id/reschedule", h.Reschedule)
		appts.DELETE("/:id", h.Delete)

		staff := appts.Group("", middleware.StaffOnly())
		staff.POST("/:id/no-show", h.NoShow)
		staff.POST("/:id/complete", h.Complete)
	}

	slots := r.Group("/slots")
	{
		slots.GET("", h.ListSlots)
		slots.GET("/:id/availability", h.SlotAvailability)
		slots.POST("/:id/recount", middleware.StaffOnly(), h.RecountSlot)
	}
}
