package tail

import "github.com/tinytelemetry/tailview/internal/model"

// history is a fixed-capacity ring of events; pushing past capacity
// overwrites the oldest entry.
type history struct {
	ring  []model.Event
	start int
	count int
}

func newHistory(capacity int) *history {
	return &history{ring: make([]model.Event, capacity)}
}

func (h *history) push(events ...model.Event) {
	size := len(h.ring)
	for _, ev := range events {
		if h.count < size {
			h.ring[(h.start+h.count)%size] = ev
			h.count++
			continue
		}
		h.ring[h.start] = ev
		h.start = (h.start + 1) % size
	}
}

// snapshot returns the buffered events oldest first.
func (h *history) snapshot() []model.Event {
	out := make([]model.Event, h.count)
	for i := range out {
		out[i] = h.ring[(h.start+i)%len(h.ring)]
	}
	return out
}

func (h *history) len() int { return h.count }
