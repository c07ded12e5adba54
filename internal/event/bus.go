package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type represents the type of event.
type Type string

const (
	TypeUnitCreated   Type = "unit_created"
	TypeUnitSubmitted Type = "unit_submitted"
	TypeTaskSucceeded Type = "task_succeeded"
	TypeTaskFailed    Type = "task_failed"
)

// Event represents a work unit lifecycle transition.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       Type            `json:"type"`
	Study      string          `json:"study"`
	Stage      string          `json:"stage"`
	WorkUnitID int64           `json:"wu_id"`
	TaskID     int64           `json:"task_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewEvent stamps an event with an id and the current time. A payload that
// cannot be encoded is dropped.
func NewEvent(t Type, study, stage string, wuID int64, payload any) Event {
	e := Event{
		ID:         uuid.New(),
		Type:       t,
		Study:      study,
		Stage:      stage,
		WorkUnitID: wuID,
		Timestamp:  time.Now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			e.Payload = raw
		}
	}
	return e
}

// Filter defines criteria for receiving events.
type Filter struct {
	Study string
	Stage string
	Types []Type
}

// Bus defines the event bus interface.
type Bus interface {
	Publish(e Event)
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, error)
}

type bus struct {
	subscribers map[chan Event]Filter
	mu          sync.RWMutex
}

// New creates a new event bus.
func New() Bus {
	return &bus{
		subscribers: make(map[chan Event]Filter),
	}
}

// Nop returns a bus that discards everything.
func Nop() Bus {
	return nop{}
}

type nop struct{}

func (nop) Publish(Event) {}

func (nop) Subscribe(ctx context.Context, _ Filter) (<-chan Event, error) {
	ch := make(chan Event)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (b *bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, filter := range b.subscribers {
		if b.matches(filter, e) {
			select {
			case ch <- e:
			default:
				// Drop event if channel is full to prevent blocking
			}
		}
	}
}

func (b *bus) Subscribe(ctx context.Context, filter Filter) (<-chan Event, error) {
	ch := make(chan Event, 100)

	b.mu.Lock()
	b.subscribers[ch] = filter
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch, nil
}

func (b *bus) matches(filter Filter, e Event) bool {
	if filter.Study != "" && filter.Study != e.Study {
		return false
	}
	if filter.Stage != "" && filter.Stage != e.Stage {
		return false
	}
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
