package handlers

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"inverapp/internal/services"
)

type DocumentHandler struct {
	Service *services.DocumentService
}

func NewDocumentHandler(service *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

// @Summary      PDF-отчёт по flow
// @Tags         Documents
// @Produce      json
// @Param        kind  path  string  true  "sale | payment"
// @Param        id    path  int     true  "ID flow"
// @Success      201  {object}  models.Document
// @Router       /flows/{kind}/{id}/report [post]
func (h *DocumentHandler) GenerateFlowReport(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	doc, err := h.Service.GenerateFlowReport(c.Request.Context(), actor, kind, id)
	if err != nil {
		writeError(c, "document][report", err)
		return
	}
	log.Printf("[document][report][ok] id=%d kind=%s flow=%d", doc.ID, kind, id)
	c.JSON(http.StatusCreated, doc)
}

// POST /commissions/:id/settlement
func (h *DocumentHandler) GenerateCommissionSettlement(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	doc, err := h.Service.GenerateCommissionSettlement(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, "document][settlement", err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// GET /documents?owner_kind=sale&owner_id=100
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var q struct {
		OwnerKind string `form:"owner_kind" binding:"required"`
		OwnerID   int64  `form:"owner_id" binding:"required"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	docs, err := h.Service.ListDocuments(c.Request.Context(), q.OwnerKind, q.OwnerID)
	if err != nil {
		writeError(c, "document][list", err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// GET /documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	doc, err := h.Service.GetDocument(c.Request.Context(), id)
	if err != nil {
		writeError(c, "document][get", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// GET /documents/:id/file: inline
func (h *DocumentHandler) ServeFile(c *gin.Context) {
	h.serve(c, "inline")
}

// GET /documents/:id/download: attachment
func (h *DocumentHandler) Download(c *gin.Context) {
	h.serve(c, "attachment")
}

func (h *DocumentHandler) serve(c *gin.Context, disposition string) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	abs, name, err := h.Service.ResolveFile(c.Request.Context(), id)
	if err != nil {
		writeError(c, "document][file", err)
		return
	}
	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf(`%s; filename="%s"`, disposition, name))
	c.File(abs)
}
