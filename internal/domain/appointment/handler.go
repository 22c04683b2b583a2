package appointment

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"servicecenter/internal/middleware"
	"servicecenter/internal/pkg/response"
)

type Handler struct {
	service *Service
	chains  *ChainTracker
}

func NewHandler(service *Service, chains *ChainTracker) *Handler {
	return &Handler{service: service, chains: chains}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "invalid "+name)
		return 0, false
	}
	return id, true
}

// Create godoc
// @Summary Book an appointment
// @Tags Appointments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body CreateRequest true "Appointment and service lines"
// @Success 201 {object} Appointment
// @Router /appointments [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	actor := middleware.ActorFrom(c)
	if req.CustomerID == 0 && !actor.IsStaff() {
		req.CustomerID = actor.UserID
	}

	appt, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, appt)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	appt, err := h.service.Get(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, appt)
}

// List godoc
// @Summary Appointments of a customer
// @Tags Appointments
// @Security BearerAuth
// @Param customer_id query int false "Customer (staff only, defaults to caller)"
// @Param status query string false "Comma separated statuses"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Router /appointments [get]
func (h *Handler) List(c *gin.Context) {
	actor := middleware.ActorFrom(c)
	customerID := actor.UserID
	if raw := c.Query("customer_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "INVALID_CUSTOMER_ID", "invalid customer_id")
			return
		}
		customerID = v
	}

	var statuses []Status
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, Status(strings.TrimSpace(s)))
		}
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	list, err := h.service.ListByCustomer(c.Request.Context(), actor, customerID, statuses, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, list)
}

func (h *Handler) Chain(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.service.Get(ctx, middleware.ActorFrom(c), id); err != nil {
		response.FromError(c, err)
		return
	}
	chain, err := h.chains.GetChain(ctx, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"chain": chain})
}

func (h *Handler) Confirm(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	appt, err := h.service.Confirm(c.Request.Context(), middleware.ActorFrom(c), id, req.Method)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, appt)
}

// Cancel godoc
// @Summary Cancel an appointment
// @Description Refund tier depends on the notice before the scheduled start.
// @Tags Appointments
// @Security BearerAuth
// @Param body body CancelRequest true "Reason"
// @Success 200 {object} CancellationResult
// @Router /appointments/{id}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	res, err := h.service.Cancel(c.Request.Context(), middleware.ActorFrom(c), id, req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *Handler) NoShow(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	appt, err := h.service.MarkNoShow(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, appt)
}

func (h *Handler) Complete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.service.Complete(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *Handler) Reschedule(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	appt, err := h.service.Reschedule(c.Request.Context(), middleware.ActorFrom(c), id, req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, appt)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteIfPossible(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) SlotAvailability(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ts, canBook, err := h.service.SlotAvailability(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"slot":      ts,
		"can_book":  canBook,
		"available": ts.Available(),
	})
}

func (h *Handler) ListSlots(c *gin.Context) {
	centerID, err := strconv.ParseInt(c.Query("center_id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_CENTER_ID", "invalid center_id")
		return
	}
	var from, to time.Time
	for _, q := range []struct {
		name string
		dst  *time.Time
	}{{"from", &from}, {"to", &to}} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		if *q.dst, err = time.Parse(time.RFC3339, raw); err != nil {
			response.Error(c, http.StatusBadRequest, "INVALID_TIME", "invalid "+q.name+", expected RFC3339")
			return
		}
	}

	slots, err := h.service.ListAvailableSlots(c.Request.Context(), centerID, from, to)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, slots)
}

func (h *Handler) RecountSlot(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ts, err := h.service.RecountSlot(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, ts)
}
