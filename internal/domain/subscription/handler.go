package subscription

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"servicecenter/internal/middleware"
	"servicecenter/internal/pkg/response"
)

// Handler handles HTTP requests for package subscriptions.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Purchase godoc
// @Summary Buy a maintenance package for a vehicle
// @Tags Subscriptions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body PurchaseRequest true "Package, vehicle and payment"
// @Success 201 {object} Subscription
// @Router /subscriptions [post]
func (h *Handler) Purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	sub, err := h.service.Purchase(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, sub)
}

func (h *Handler) Get(c *gin.Context) {
	sub, err := h.service.Get(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, sub)
}

// GetUsage godoc
// @Summary Remaining uses per service of a subscription
// @Tags Subscriptions
// @Security BearerAuth
// @Produce json
// @Success 200 {object} UsageSummary
// @Router /subscriptions/{id}/usage [get]
func (h *Handler) GetUsage(c *gin.Context) {
	summary, err := h.service.GetUsage(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// bindReason accepts an empty body as "no reason" and rejects malformed JSON.
func bindReason(c *gin.Context, req *ReasonRequest) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		response.FromError(c, ErrInvalidBody.Wrap(err))
		return false
	}
	return true
}

func (h *Handler) Cancel(c *gin.Context) {
	var req ReasonRequest
	if !bindReason(c, &req) {
		return
	}

	sub, err := h.service.Cancel(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, sub)
}

func (h *Handler) Suspend(c *gin.Context) {
	var req ReasonRequest
	if !bindReason(c, &req) {
		return
	}

	sub, err := h.service.Suspend(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, sub)
}

func (h *Handler) Reactivate(c *gin.Context) {
	sub, err := h.service.Reactivate(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, sub)
}

func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	sub, err := h.service.ConfirmPayment(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"), req.Amount)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, sub)
}
