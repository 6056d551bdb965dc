package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"

	"inverapp/internal/models"
)

// Filter отбирает события внутри таблицы; nil: все события.
type Filter func(ev models.ChangeEvent) bool

type Handler func(ctx context.Context, ev models.ChangeEvent)

type subscription struct {
	id      int
	filter  Filter
	handler Handler
}

// ChangeFeed fans out {table, eventType, old, new} events to per-table subscribers.
// Delivery is best-effort: handlers must tolerate duplicates and gaps.
type ChangeFeed struct {
	mu      sync.RWMutex
	subs    map[string][]subscription
	nextID  int
	timeout time.Duration
}

func NewChangeFeed(deliveryTimeout time.Duration) *ChangeFeed {
	return &ChangeFeed{
		subs:    make(map[string][]subscription),
		timeout: deliveryTimeout,
	}
}

func EventTypes(types ...string) Filter {
	return func(ev models.ChangeEvent) bool {
		for _, t := range types {
			if ev.EventType == t {
				return true
			}
		}
		return false
	}
}

// Subscribe возвращает функцию отписки.
func (f *ChangeFeed) Subscribe(table string, filter Filter, h Handler) func() {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subs[table] = append(f.subs[table], subscription{id: id, filter: filter, handler: h})
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subs[table]
		for i, s := range subs {
			if s.id == id {
				f.subs[table] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Dispatch delivers ev to every matching subscriber. Each delivery is bounded by
// the feed timeout; a handler that overruns is abandoned (its ctx is cancelled).
func (f *ChangeFeed) Dispatch(ctx context.Context, ev models.ChangeEvent) {
	f.mu.RLock()
	subs := append([]subscription(nil), f.subs[ev.Table]...)
	f.mu.RUnlock()

	for _, s := range subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		f.deliver(ctx, s, ev)
	}
}

func (f *ChangeFeed) deliver(ctx context.Context, s subscription, ev models.ChangeEvent) {
	dctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[feed][panic] table=%s event=%s: %v", ev.Table, ev.EventType, r)
			}
		}()
		s.handler(dctx, ev)
	}()

	select {
	case <-done:
	case <-dctx.Done():
		log.Printf("[feed][timeout] table=%s event=%s after %s", ev.Table, ev.EventType, f.timeout)
	}
}

// Listen reads NOTIFY payloads from channel until ctx is done.
// The payload is the JSON ChangeEvent produced by the table triggers.
func (f *ChangeFeed) Listen(ctx context.Context, dsn, channel string) error {
	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("[feed][listener][err] event=%d: %v", ev, err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(channel); err != nil {
		return err
	}
	log.Printf("[feed] listening on %q", channel)

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			if n == nil {
				// переподключение: события за время разрыва потеряны
				log.Printf("[feed] listener reconnected")
				continue
			}
			var ev models.ChangeEvent
			if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
				log.Printf("[feed][decode][err] payload=%q: %v", n.Extra, err)
				continue
			}
			f.Dispatch(ctx, ev)
		case <-ping.C:
			go func() { _ = listener.Ping() }()
		}
	}
}
