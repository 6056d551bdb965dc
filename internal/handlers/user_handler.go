package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"inverapp/internal/authz"
	"inverapp/internal/models"
	"inverapp/internal/services"
)

type UserHandler struct {
	service services.UserService
}

func NewUserHandler(service services.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// аудитор видит справочник без контактов
func maskIfAudit(callerType string, u models.User) models.User {
	u.PasswordHash = ""
	if callerType == authz.UserTypeAuditor {
		u.Email = ""
		u.TelegramChatID = 0
	}
	return u
}

// @Summary      Пользователь
// @Tags         Users
// @Produce      json
// @Param        id  path  int  true  "ID пользователя"
// @Success      200  {object}  models.User
// @Failure      404  {object}  map[string]string
// @Router       /users/{id} [get]
func (h *UserHandler) GetUserByID(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	user, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, "user][get", err)
		return
	}
	c.JSON(http.StatusOK, maskIfAudit(actor.UserType, *user))
}

// @Summary      Справочник пользователей
// @Description  Для выбора исполнителей и упоминаний; фильтр по user_type
// @Tags         Users
// @Produce      json
// @Param        user_type  query  string  false  "Vendedor, Operaciones, ..."
// @Param        page       query  int     false  "Страница (с 1)"
// @Param        limit      query  int     false  "Размер страницы"
// @Success      200  {array}  models.User
// @Router       /users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		limit = 50
	}
	offset := (page - 1) * limit

	users, err := h.service.ListUsers(c.Request.Context(), c.Query("user_type"), limit, offset)
	if err != nil {
		log.Printf("[user][list][err] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
		return
	}

	out := make([]models.User, 0, len(users))
	for _, u := range users {
		out = append(out, maskIfAudit(actor.UserType, u))
	}
	c.JSON(http.StatusOK, out)
}
