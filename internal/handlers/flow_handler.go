package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"inverapp/internal/services"
)

type FlowHandler struct {
	service services.FlowService
}

func NewFlowHandler(service services.FlowService) *FlowHandler {
	return &FlowHandler{service: service}
}

// POST /flows/:kind/:id/start
func (h *FlowHandler) Start(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	flow, err := h.service.StartFlow(c.Request.Context(), kind, id)
	if err != nil {
		writeError(c, "flow][start", err)
		return
	}
	log.Printf("[flow][start][ok] kind=%s id=%d", kind, id)
	c.JSON(http.StatusOK, flow)
}

// POST /flows/:kind/:id/complete
func (h *FlowHandler) Complete(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	flow, err := h.service.CompleteFlow(c.Request.Context(), kind, id)
	if err != nil {
		writeError(c, "flow][complete", err)
		return
	}
	log.Printf("[flow][complete][ok] kind=%s id=%d", kind, id)
	c.JSON(http.StatusOK, flow)
}

type setStageRequest struct {
	StageID int64 `json:"stage_id" binding:"required"`
}

// PUT /flows/:kind/:id/stage
func (h *FlowHandler) SetStage(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req setStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	flow, err := h.service.SetCurrentStage(c.Request.Context(), kind, id, req.StageID)
	if err != nil {
		writeError(c, "flow][stage", err)
		return
	}
	c.JSON(http.StatusOK, flow)
}

type paymentFlowRequest struct {
	TemplateID int64 `json:"flow_template_id" binding:"required"`
}

// @Summary      Flow выплаты комиссии
// @Description  Возвращает активный flow выплаты, создавая его при первом обращении
// @Tags         Commissions
// @Accept       json
// @Produce      json
// @Param        id    path  int                 true  "ID комиссии"
// @Param        body  body  paymentFlowRequest  true  "Шаблон"
// @Success      200  {object}  models.Flow
// @Failure      404  {object}  map[string]string
// @Router       /commissions/{id}/payment-flow [post]
func (h *FlowHandler) EnsurePaymentFlow(c *gin.Context) {
	commissionID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req paymentFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	flow, err := h.service.EnsurePaymentFlow(c.Request.Context(), commissionID, req.TemplateID)
	if err != nil {
		writeError(c, "flow][payment", err)
		return
	}
	c.JSON(http.StatusOK, flow)
}
