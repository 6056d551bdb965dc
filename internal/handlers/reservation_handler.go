package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"inverapp/internal/services"
)

type ReservationHandler struct {
	reservations services.ReservationService
	commissions  services.CommissionService
}

func NewReservationHandler(reservations services.ReservationService, commissions services.CommissionService) *ReservationHandler {
	return &ReservationHandler{reservations: reservations, commissions: commissions}
}

// @Summary      Создание резерва
// @Description  Сохраняет резерв и заводит для него sale flow
// @Tags         Reservations
// @Accept       json
// @Produce      json
// @Param        body  body  services.CreateReservationInput  true  "Резерв"
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /reservations [post]
func (h *ReservationHandler) Create(c *gin.Context) {
	var in services.CreateReservationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, flow, err := h.reservations.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, "reservation][create", err)
		return
	}
	log.Printf("[reservation][create][ok] id=%d number=%q flow=%d", r.ID, r.ReservationNumber, flow.ID)
	c.JSON(http.StatusCreated, gin.H{"reservation": r, "flow": flow})
}

// GET /reservations/:id
func (h *ReservationHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	r, flow, err := h.reservations.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, "reservation][get", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservation": r, "flow": flow})
}

type confirmRequest struct {
	Confirmation string `json:"confirmation" binding:"required"`
	Reason       string `json:"reason" binding:"required"`
}

// @Summary      Rescisión резерва
// @Description  Требует ввести RESCINDIR и причину; flow остаётся как история
// @Tags         Reservations
// @Accept       json
// @Produce      json
// @Param        id    path  int             true  "ID резерва"
// @Param        body  body  confirmRequest  true  "Подтверждение"
// @Success      200  {object}  models.Reservation
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /reservations/{id}/rescind [post]
func (h *ReservationHandler) Rescind(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.reservations.Rescind(c.Request.Context(), id, req.Confirmation, req.Reason)
	if err != nil {
		writeError(c, "reservation][rescind", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// GET /commissions/:id
func (h *ReservationHandler) GetCommission(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	bc, err := h.commissions.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, "commission][get", err)
		return
	}
	c.JSON(http.StatusOK, bc)
}

// POST /commissions/:id/penalize (Administrador)
func (h *ReservationHandler) PenalizeCommission(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bc, err := h.commissions.Penalize(c.Request.Context(), actor, id, req.Confirmation, req.Reason)
	if err != nil {
		writeError(c, "commission][penalize", err)
		return
	}
	log.Printf("[commission][penalize][ok] id=%d by=%d", id, actor.UserID)
	c.JSON(http.StatusOK, bc)
}
