package events

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Outbox is an append-only, sequence-numbered event list. It keeps the most
// recent `capacity` events (all of them when capacity is zero) and fans new
// ones out to subscribers.
type Outbox struct {
	mu       sync.RWMutex
	events   []Event
	seq      uint64
	capacity int

	subs    map[int]chan Event
	nextSub int
}

func NewOutbox(capacity int) *Outbox {
	return &Outbox{capacity: capacity, subs: make(map[int]chan Event)}
}

// Append assigns the next sequence number and returns the stored event.
func (o *Outbox) Append(e Event) Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.seq++
	e.Seq = o.seq
	o.events = append(o.events, e)
	if o.capacity > 0 && len(o.events) > o.capacity {
		trimmed := make([]Event, o.capacity)
		copy(trimmed, o.events[len(o.events)-o.capacity:])
		o.events = trimmed
	}

	for id, ch := range o.subs {
		select {
		case ch <- e:
		default:
			log.Warn().Int("subscriber", id).Uint64("seq", e.Seq).Msg("event subscriber too slow, dropping")
			close(ch)
			delete(o.subs, id)
		}
	}
	return e
}

// Since returns events with Seq > after, oldest first, at most limit
// (all when limit <= 0).
func (o *Outbox) Since(after uint64, limit int) []Event {
	o.mu.RLock()
	defer o.mu.RUnlock()

	start := sort.Search(len(o.events), func(i int) bool { return o.events[i].Seq > after })
	end := len(o.events)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]Event, end-start)
	copy(out, o.events[start:end])
	return out
}

// LastSeq is the sequence number of the newest event, zero when empty.
func (o *Outbox) LastSeq() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.seq
}

// Subscribe registers a live feed. The channel is closed when the returned
// cancel is called or when the subscriber falls more than buffer events
// behind.
func (o *Outbox) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if _, ok := o.subs[id]; ok {
				close(ch)
				delete(o.subs, id)
			}
		})
	}
}
