package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"

	"inverapp/internal/models"
	"inverapp/internal/repositories"
	"inverapp/internal/services"
	"inverapp/internal/utils"
)

const (
	btnMyTasks  = "📋 Mis tareas"
	linkCodeTTL = 30 * time.Minute
)

type IntegrationsHandler struct {
	TG          *services.TelegramService
	LinksRepo   repositories.TelegramLinkRepository
	UsersRepo   repositories.UserRepository
	Assignments repositories.AssignmentRepository
	now         func() time.Time
}

func NewIntegrationsHandler(
	tg *services.TelegramService,
	links repositories.TelegramLinkRepository,
	users repositories.UserRepository,
	assignments repositories.AssignmentRepository,
) *IntegrationsHandler {
	return &IntegrationsHandler{TG: tg, LinksRepo: links, UsersRepo: users, Assignments: assignments, now: time.Now}
}

// Webhook принимает апдейты бота: /start, /link <код>, кнопка "Mis tareas".
// Всегда отвечает 200, иначе Telegram будет повторять доставку.
func (h *IntegrationsHandler) Webhook(c *gin.Context) {
	if h.TG == nil {
		log.Printf("[TG:WEBHOOK] TelegramService == nil (no token). Return 200.")
		c.Status(http.StatusOK)
		return
	}

	var up tgbotapi.Update
	if err := c.ShouldBindJSON(&up); err != nil || up.Message == nil || up.Message.Chat == nil {
		if err != nil {
			log.Printf("[TG:WEBHOOK] bind json error: %v", err)
		}
		c.Status(http.StatusOK)
		return
	}

	text := strings.TrimSpace(up.Message.Text)
	chatID := up.Message.Chat.ID
	log.Printf("[TG:WEBHOOK] incoming: chatID=%d, text=%q", chatID, text)

	switch {
	case up.Message.IsCommand() && up.Message.Command() == "start":
		_ = h.TG.SendReplyKeyboard(chatID,
			"¡Hola! Para vincular tu cuenta envía:\n<code>/link &lt;código&gt;</code>",
			[][]string{{btnMyTasks}},
		)

	case up.Message.IsCommand() && up.Message.Command() == "link":
		h.link(c, chatID, up.Message.CommandArguments())

	case text == btnMyTasks:
		h.sendMyTasksDigest(c, chatID)

	default:
		_ = h.TG.SendMessage(chatID, "No entendí el comando. Usa <code>/link &lt;código&gt;</code> o el botón del menú.")
	}

	c.Status(http.StatusOK)
}

func (h *IntegrationsHandler) link(c *gin.Context, chatID int64, raw string) {
	code, ok := utils.NormalizeLinkCode(raw)
	if !ok {
		log.Printf("[TG:WEBHOOK] code normalize failed: raw=%q", raw)
		_ = h.TG.SendMessage(chatID, "Formato de código inválido. Envía exactamente 32 caracteres HEX:\n<code>/link 0123456789ABCDEF0123456789ABCDEF</code>")
		return
	}
	link, err := h.LinksRepo.UseByCode(c.Request.Context(), code)
	if err != nil {
		log.Printf("[TG:WEBHOOK] UseByCode failed (code=%q): %v", code, err)
		_ = h.TG.SendMessage(chatID, "El código no es válido o expiró. Genera uno nuevo en la aplicación.")
		return
	}
	if err := h.UsersRepo.UpdateTelegramLink(c.Request.Context(), link.UserID, chatID, true); err != nil {
		log.Printf("[TG:WEBHOOK] UpdateTelegramLink failed: userID=%d chatID=%d err=%v", link.UserID, chatID, err)
		_ = h.TG.SendMessage(chatID, "No se pudo vincular la cuenta, intenta más tarde.")
		return
	}
	_ = h.TG.SendReplyKeyboard(chatID,
		"¡Listo! Cuenta vinculada. Recibirás avisos cuando te asignen tareas.",
		[][]string{{btnMyTasks}},
	)
}

// @Summary      Код привязки Telegram
// @Tags         Integrations
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /integrations/telegram/request-link [post]
func (h *IntegrationsHandler) RequestTelegramLink(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	code, err := utils.NewLinkCode(utils.LinkCodeBytes)
	if err != nil {
		log.Printf("[TG:REQ-LINK] code generation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rng failed"})
		return
	}
	link, err := h.LinksRepo.Create(c.Request.Context(), actor.UserID, code, linkCodeTTL)
	if err != nil {
		log.Printf("[TG:REQ-LINK] LinksRepo.Create failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot create link"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":       link.Code,
		"expires_at": link.ExpiresAt,
		"hint":       "Abre el chat con el bot y envía: /link " + link.Code,
	})
}

// sendMyTasksDigest: сводка по назначенным задачам пользователя, привязавшего чат.
func (h *IntegrationsHandler) sendMyTasksDigest(c *gin.Context, chatID int64) {
	u, err := h.UsersRepo.GetByChatID(c.Request.Context(), chatID)
	if err != nil || u == nil {
		_ = h.TG.SendMessage(chatID, "No pudimos identificarte. Vincula tu cuenta con /link.")
		return
	}
	tasks, err := h.Assignments.ListAssignedTasks(c.Request.Context(), u.ID)
	if err != nil {
		log.Printf("[TG:MYTASKS] tasks fetch failed for uid=%d: %v", u.ID, err)
		_ = h.TG.SendMessage(chatID, "No se pudieron cargar las tareas.")
		return
	}
	_ = h.TG.SendReplyKeyboard(chatID, tasksDigest(tasks, h.now()), [][]string{{btnMyTasks}})
}

func tasksDigest(tasks []models.AssignedTask, now time.Time) string {
	var sale, payment []models.AssignedTask
	for _, t := range tasks {
		switch t.Kind {
		case models.FlowKindSale:
			sale = append(sale, t)
		case models.FlowKindPayment:
			payment = append(payment, t)
		}
	}
	total := models.PendingTaskCount(tasks, now)
	if total == 0 {
		return "No tienes tareas pendientes. 👍"
	}
	var b strings.Builder
	b.WriteString("📋 <b>Mis tareas</b>\n")
	b.WriteString(fmt.Sprintf("\n• Ventas: %d\n", models.PendingTaskCount(sale, now)))
	b.WriteString(fmt.Sprintf("• Pagos de comisión: %d\n", models.PendingTaskCount(payment, now)))
	b.WriteString(fmt.Sprintf("\nTotal: <b>%d</b>", total))
	return b.String()
}
