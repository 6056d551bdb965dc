package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"inverapp/internal/models"
	"inverapp/internal/services"
)

// более устойчиво к типам (int / int64 / float64 / string)
func getInt64FromCtx(c *gin.Context, key string) (int64, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// getActor достаёт пользователя, положенного AuthMiddleware.
func getActor(c *gin.Context) (services.Actor, bool) {
	id, ok := getInt64FromCtx(c, "user_id")
	if !ok || id == 0 {
		return services.Actor{}, false
	}
	return services.Actor{UserID: id, UserType: c.GetString("user_type")}, true
}

// mustActor пишет 401, если пользователя в контексте нет.
func mustActor(c *gin.Context) (services.Actor, bool) {
	actor, ok := getActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return actor, ok
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return 0, false
	}
	return id, true
}

func parseKind(c *gin.Context) (models.FlowKind, bool) {
	kind, ok := models.ParseFlowKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be sale or payment"})
		return "", false
	}
	return kind, true
}

// statusFor сопоставляет ошибки сервисов с HTTP-кодами.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError отвечает {"error": текст ошибки} с кодом по её виду.
func writeError(c *gin.Context, tag string, err error) {
	status := statusFor(err)
	log.Printf("[%s][err] status=%d: %v", tag, status, err)
	c.JSON(status, gin.H{"error": err.Error()})
}
