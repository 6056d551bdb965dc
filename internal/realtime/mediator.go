package realtime

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Popup: всплывающее уведомление пользователя (назначение, снятие, упоминание).
type Popup struct {
	ID       string                 `json:"id"`
	UserID   int64                  `json:"user_id"`
	Kind     string                 `json:"kind"`
	Title    string                 `json:"title"`
	Body     string                 `json:"body,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
	OpenedAt time.Time              `json:"opened_at"`
	Closed   bool                   `json:"closed"`
}

// Sender доставляет сообщение пользователю; *Hub его реализует.
type Sender interface {
	SendToUser(userID int64, msg Message)
}

// Mediator is the single show/hide channel for popups. Closed popups are
// dropped clearAfter later. Create one per process (tests create their own).
type Mediator struct {
	mu         sync.Mutex
	popups     map[string]*Popup
	clearAfter time.Duration
	out        Sender
	now        func() time.Time
}

func NewMediator(out Sender, clearAfter time.Duration) *Mediator {
	return &Mediator{
		popups:     make(map[string]*Popup),
		clearAfter: clearAfter,
		out:        out,
		now:        time.Now,
	}
}

func (m *Mediator) Show(userID int64, kind, title, body string, opts map[string]interface{}) Popup {
	p := &Popup{
		ID:       uuid.NewString(),
		UserID:   userID,
		Kind:     kind,
		Title:    title,
		Body:     body,
		Options:  opts,
		OpenedAt: m.now(),
	}
	m.mu.Lock()
	m.popups[p.ID] = p
	m.mu.Unlock()

	if m.out != nil {
		m.out.SendToUser(userID, Message{Type: MsgPopup, Data: *p})
	}
	return *p
}

// Hide закрывает popup; повторное закрытие и неизвестный id возвращают false.
func (m *Mediator) Hide(id string) bool {
	m.mu.Lock()
	p, ok := m.popups[id]
	if !ok || p.Closed {
		m.mu.Unlock()
		return false
	}
	p.Closed = true
	closed := *p
	m.mu.Unlock()

	if m.out != nil {
		m.out.SendToUser(closed.UserID, Message{Type: MsgPopupClosed, Data: map[string]string{"id": id}})
	}
	time.AfterFunc(m.clearAfter, func() {
		m.mu.Lock()
		delete(m.popups, id)
		m.mu.Unlock()
	})
	return true
}

func (m *Mediator) Get(id string) (Popup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.popups[id]
	if !ok {
		return Popup{}, false
	}
	return *p, true
}

// Active returns the user's open popups, oldest first.
func (m *Mediator) Active(userID int64) []Popup {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Popup{}
	for _, p := range m.popups {
		if p.UserID == userID && !p.Closed {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}
