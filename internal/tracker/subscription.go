package tracker

import (
	"log"
	"sync"

	"github.com/tinytelemetry/tailview/internal/model"
)

// maxBacklog bounds how far a subscriber may fall behind before it is
// dropped.
const maxBacklog = 100_000

// Subscription delivers notifications in publish order. Publishing never
// blocks on a slow reader; undelivered notifications queue in the
// subscription until it is read or closed.
type Subscription struct {
	hub *hub
	ch  chan model.Notification

	mu    sync.Mutex
	queue []model.Notification

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newSubscription(h *hub) *Subscription {
	return &Subscription{
		hub:  h,
		ch:   make(chan model.Notification),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Notifications returns the delivery channel. It is closed after Close or
// when the tracker stops.
func (s *Subscription) Notifications() <-chan model.Notification {
	return s.ch
}

// Done is closed once the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close detaches the subscription. Queued notifications are discarded.
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.terminate()
}

func (s *Subscription) terminate() {
	s.once.Do(func() { close(s.done) })
}

// push queues n and reports false when the backlog limit was hit.
func (s *Subscription) push(n model.Notification) bool {
	s.mu.Lock()
	if len(s.queue) >= maxBacklog {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, n)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *Subscription) pump() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, n := range batch {
			select {
			case s.ch <- n:
			case <-s.done:
				return
			}
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

// hub fans notifications out to subscriptions.
type hub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*Subscription]struct{})}
}

func (h *hub) add(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
}

func (h *hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

func (h *hub) publish(n model.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if !s.push(n) {
			log.Printf("tracker: dropping subscriber with %d queued notifications", maxBacklog)
			delete(h.subs, s)
			s.terminate()
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		s.terminate()
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
