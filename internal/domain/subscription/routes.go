package subscription

import (
	"github.com/gin-gonic/gin"

	"servicecenter/internal/middleware"
)

// RegisterRoutes mounts subscription endpoints on an authenticated group.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	subs := r.Group("/subscriptions")
	{
		subs.POST("", h.Purchase)
		subs.GET("/:id", h.Get)
		subs.GET("/:id/usage", h.GetUsage)
		subs.POST("/:id/cancel", h.Cancel)

		staff := subs.Group("", middleware.StaffOnly())
		staff.POST("/:id/suspend", h.Suspend)
		staff.POST("/:id/reactivate", h.Reactivate)
		staff.POST("/:id/confirm-payment", h.ConfirmPayment)
	}
}
