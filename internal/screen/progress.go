package screen

import (
	"sync"
	"time"
)

// Stage identifies a pipeline phase in progress events.
type Stage string

const (
	StageUniverse   Stage = "universe"
	StageCompliance Stage = "compliance"
	StageEvaluation Stage = "evaluation"
	StageEnrichment Stage = "enrichment"
	StageDone       Stage = "done"
)

// ProgressEvent is one pipeline progress update, consumed by the CLI
// monitor and the websocket stream.
type ProgressEvent struct {
	RunID     string    `json:"run_id"`
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message"`
	Ticker    string    `json:"ticker,omitempty"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus fans progress events out to subscribers. Publishing never blocks:
// a subscriber that falls behind loses events, not the pipeline.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan ProgressEvent
	next int
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan ProgressEvent)}
}

const subscriberBuffer = 256

// Subscribe registers a consumer. The returned cancel func must be called
// to release the channel.
func (b *Bus) Subscribe() (<-chan ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan ProgressEvent, subscriberBuffer)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers an event to all current subscribers, dropping it for
// any whose buffer is full.
func (b *Bus) Publish(event ProgressEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
