package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"inverapp/internal/realtime"
	"inverapp/internal/services"
)

type NotificationHandler struct {
	notify   services.NotificationService
	collapse services.CollapseService
	hub      *realtime.Hub
	popups   *realtime.Mediator
}

func NewNotificationHandler(
	notify services.NotificationService,
	collapse services.CollapseService,
	hub *realtime.Hub,
	popups *realtime.Mediator,
) *NotificationHandler {
	return &NotificationHandler{notify: notify, collapse: collapse, hub: hub, popups: popups}
}

// @Summary      Счётчик задач
// @Description  Число назначенных задач, требующих внимания (без свёрнутых и без pending flow)
// @Tags         Notifications
// @Produce      json
// @Success      200  {object}  map[string]int
// @Router       /notifications/count [get]
func (h *NotificationHandler) Count(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	n, err := h.notify.PendingCount(c.Request.Context(), actor.UserID)
	if err != nil {
		writeError(c, "notify][count", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// GET /notifications/popups
func (h *NotificationHandler) ActivePopups(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.popups.Active(actor.UserID))
}

// POST /notifications/popups/:id/hide
func (h *NotificationHandler) HidePopup(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	p, found := h.popups.Get(id)
	if !found || p.UserID != actor.UserID {
		c.JSON(http.StatusNotFound, gin.H{"error": "popup not found"})
		return
	}
	if !h.popups.Hide(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "popup already closed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type collapseRequest struct {
	TTLMinutes int `json:"ttl_minutes"` // 0: срок по умолчанию
}

// @Summary      Свернуть задачу
// @Description  Скрывает назначение из счётчика до истечения срока
// @Tags         Notifications
// @Accept       json
// @Produce      json
// @Param        id    path  int              true   "ID назначения"
// @Param        body  body  collapseRequest  false  "Срок"
// @Success      200  {object}  models.CollapsedTask
// @Failure      403  {object}  map[string]string
// @Router       /assignments/{id}/collapse [post]
func (h *NotificationHandler) Collapse(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req collapseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	ct, err := h.collapse.Collapse(c.Request.Context(), actor, id, time.Duration(req.TTLMinutes)*time.Minute)
	if err != nil {
		writeError(c, "notify][collapse", err)
		return
	}
	c.JSON(http.StatusOK, ct)
}

type streamCommand struct {
	Type string `json:"type"` // hide
	ID   string `json:"id"`
}

// Stream: WebSocket /notifications/stream: count, popup, popup_closed, comments_refresh.
func (h *NotificationHandler) Stream(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	conn, err := realtime.Upgrade(c.Writer, c.Request)
	if err != nil {
		log.Printf("[notify][ws][err] upgrade user=%d: %v", actor.UserID, err)
		return
	}
	h.hub.Register(actor.UserID, conn)
	defer h.hub.Unregister(actor.UserID, conn)

	// начальное состояние: счётчик и открытые popups
	h.notify.Refresh(c.Request.Context(), actor.UserID)
	for _, p := range h.popups.Active(actor.UserID) {
		_ = conn.WriteJSON(realtime.Message{Type: realtime.MsgPopup, Data: p})
	}

	for {
		var cmd streamCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			break
		}
		if cmd.Type != "hide" {
			continue
		}
		if p, found := h.popups.Get(cmd.ID); found && p.UserID == actor.UserID {
			h.popups.Hide(cmd.ID)
		}
	}
}
