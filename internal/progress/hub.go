package progress

import (
	"sync"
	"time"

	"tubegrab/pkg/models"
)

const subscriberBuffer = 16

type topic struct {
	last     *models.Progress
	subs     map[chan models.Progress]struct{}
	closed   bool
	closedAt time.Time
	touched  time.Time
}

// Hub fans progress events out to subscribers keyed by download id
type Hub struct {
	mu     sync.Mutex
	topics map[string]*topic
	now    func() time.Time
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]*topic),
		now:    time.Now,
	}
}

func (h *Hub) topic(id string) *topic {
	t, ok := h.topics[id]
	if !ok {
		t = &topic{subs: make(map[chan models.Progress]struct{})}
		h.topics[id] = t
	}
	t.touched = h.now()
	return t
}

// Publish records ev as the latest event for id and delivers it.
// Subscribers that are behind miss intermediate events; a terminal
// event closes every subscription after it is delivered.
func (h *Hub) Publish(id string, ev models.Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.topic(id)
	if t.closed {
		return
	}

	last := ev
	t.last = &last

	for ch := range t.subs {
		if ev.Status.Terminal() {
			deliverTerminal(ch, ev)
			close(ch)
			continue
		}

		select {
		case ch <- ev:
		default:
		}
	}

	if ev.Status.Terminal() {
		t.closed = true
		t.closedAt = h.now()
		t.subs = make(map[chan models.Progress]struct{})
	}
}

// deliverTerminal makes room in a full buffer so the final event is never lost
func deliverTerminal(ch chan models.Progress, ev models.Progress) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}

		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe returns a channel of events for id, starting with the most
// recent one. The channel is closed after a terminal event or cancel.
func (h *Hub) Subscribe(id string) (<-chan models.Progress, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan models.Progress, subscriberBuffer)
	t := h.topic(id)

	if t.last != nil {
		ch <- *t.last
	}

	if t.closed {
		close(ch)
		return ch, func() {}
	}

	t.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			if _, ok := t.subs[ch]; ok {
				delete(t.subs, ch)
				close(ch)
				t.touched = h.now()
			}
		})
	}

	return ch, cancel
}

// Last returns the latest event published for id
func (h *Hub) Last(id string) (models.Progress, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[id]
	if !ok || t.last == nil {
		return models.Progress{}, false
	}
	return *t.last, true
}

// Forget drops all state for id, closing any remaining subscriptions
func (h *Hub) Forget(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[id]
	if !ok {
		return
	}

	for ch := range t.subs {
		delete(t.subs, ch)
		close(ch)
	}
	delete(h.topics, id)
}

// Prune forgets ids that finished more than maxAge ago, and ids nobody
// listens to that have seen no activity for maxAge. It returns how many
// were removed.
func (h *Hub) Prune(maxAge time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	cutoff := h.now().Add(-maxAge)
	for id, t := range h.topics {
		finished := t.closed && t.closedAt.Before(cutoff)
		abandoned := len(t.subs) == 0 && t.touched.Before(cutoff)
		if finished || abandoned {
			delete(h.topics, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked ids
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}
