package handlers

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"inverapp/internal/models"
	"inverapp/internal/services"
)

type AuthHandler struct {
	userService services.UserService
}

func NewAuthHandler(userService services.UserService) *AuthHandler {
	return &AuthHandler{userService: userService}
}

// @Summary      Вход в систему
// @Description  Аутентифицирует пользователя и возвращает access token
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        login  body      models.LoginRequest  true  "Данные для входа"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Router       /login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	start := time.Now()

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[auth][login] bad request: bind json failed: err=%v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(req.Email)
	log.Printf("[auth][login] attempt email=%q", email)

	res, err := h.userService.Login(c.Request.Context(), email, req.Password)
	if err != nil {
		if statusFor(err) == http.StatusUnauthorized {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		writeError(c, "auth][login", err)
		return
	}
	log.Printf("[auth][login] success userID=%d type=%q took=%s", res.User.ID, res.User.UserType, time.Since(start).Truncate(time.Millisecond))

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user":    res.User, // PasswordHash помечен json:"-"
		"tokens": gin.H{
			"access_token": res.AccessToken,
			"expires_at":   res.ExpiresAt,
		},
	})
}

// GET /me
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	u, err := h.userService.GetByID(c.Request.Context(), actor.UserID)
	if err != nil {
		writeError(c, "auth][me", err)
		return
	}
	c.JSON(http.StatusOK, u)
}
