package realtime

import (
	"log"
	"sync"
)

const (
	MsgCount           = "count"
	MsgPopup           = "popup"
	MsgPopupClosed     = "popup_closed"
	MsgCommentsRefresh = "comments_refresh"
)

// Message: конверт для всех сообщений, уходящих в /notifications/stream.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type jsonWriter interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Hub держит открытые соединения по пользователю (у пользователя может быть несколько вкладок).
type Hub struct {
	mu    sync.RWMutex
	users map[int64]map[jsonWriter]struct{}
}

func NewHub() *Hub {
	return &Hub{
		users: make(map[int64]map[jsonWriter]struct{}),
	}
}

func (h *Hub) Register(userID int64, conn jsonWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[userID] == nil {
		h.users[userID] = make(map[jsonWriter]struct{})
	}
	h.users[userID][conn] = struct{}{}
}

func (h *Hub) Unregister(userID int64, conn jsonWriter) {
	h.mu.Lock()
	if conns, ok := h.users[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.users, userID)
		}
	}
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) Connected(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

func (h *Hub) SendToUser(userID int64, msg Message) {
	h.mu.RLock()
	conns := make([]jsonWriter, 0, len(h.users[userID]))
	for conn := range h.users[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("[ws][send][err] user=%d type=%s: %v", userID, msg.Type, err)
			h.Unregister(userID, conn)
		}
	}
}
