package reconcile

import "sync"

// Hub fans status updates out to stream subscribers of a payment. Slow
// subscribers miss updates rather than block settlement.
type Hub struct {
	mu     sync.Mutex
	subs   map[int64]map[chan Update]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[chan Update]struct{})}
}

func (h *Hub) Subscribe(paymentID int64) (<-chan Update, func()) {
	ch := make(chan Update, 8)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if h.subs[paymentID] == nil {
		h.subs[paymentID] = make(map[chan Update]struct{})
	}
	h.subs[paymentID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[paymentID][ch]; !ok {
				return // already closed by Close
			}
			delete(h.subs[paymentID], ch)
			if len(h.subs[paymentID]) == 0 {
				delete(h.subs, paymentID)
			}
			close(ch)
		})
	}
}

func (h *Hub) Publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[u.PaymentID] {
		select {
		case ch <- u:
		default:
		}
	}
}

// Close ends every open subscription. Later subscriptions get a closed
// channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, chans := range h.subs {
		for ch := range chans {
			close(ch)
		}
		delete(h.subs, id)
	}
}

func (h *Hub) Subscribers(paymentID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[paymentID])
}
