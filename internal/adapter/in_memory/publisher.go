package in_memory

import (
	"context"
	"sync"

	"github.com/ChipaDevTeam/ChipaX/internal/port"
)

// Recorder keeps every published event; used when no broker is configured
// and in tests.
type Recorder struct {
	mu     sync.Mutex
	events []port.Event
	limit  int
}

var _ port.Publisher = (*Recorder)(nil)

// NewRecorder keeps at most limit events, dropping the oldest; limit <= 0 keeps all.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Publish(ctx context.Context, events ...port.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append([]port.Event(nil), r.events[len(r.events)-r.limit:]...)
	}
	return nil
}

func (r *Recorder) Events(types ...port.EventType) []port.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(types) == 0 {
		return append([]port.Event(nil), r.events...)
	}
	var out []port.Event
	for _, e := range r.events {
		for _, t := range types {
			if e.Type == t {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
