// Package notify delivers outcome notifications of background work to the
// users who triggered it.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type identifies what a notification is about.
type Type int16

const (
	TypeSupport Type = iota + 1
	TypeRating
	TypeReply
	TypeReplyLike
	TypePost
	TypeIdea
	TypeTopic
	TypeTopicPost
	TypeTopicUpvote
	TypeAnswer
	TypeMembership
	TypeReport
	TypeEntityChanged
)

var typeNames = map[Type]string{
	TypeSupport:       "support",
	TypeRating:        "rating",
	TypeReply:         "reply",
	TypeReplyLike:     "reply_like",
	TypePost:          "post",
	TypeIdea:          "idea",
	TypeTopic:         "topic",
	TypeTopicPost:     "topic_post",
	TypeTopicUpvote:   "topic_upvote",
	TypeAnswer:        "answer",
	TypeMembership:    "membership",
	TypeReport:        "report",
	TypeEntityChanged: "entity_changed",
}

// String returns the wire name of the type, "unknown" for unregistered values.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is one notification. An empty UserID broadcasts to every subscriber.
type Event struct {
	UserID    string    `json:"userId,omitempty"`
	Type      Type      `json:"-"`
	TypeName  string    `json:"type"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	EntityIDs []string  `json:"entityIds,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives events.
type Notifier interface {
	Notify(event Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(Event) {}

const defaultBufferSize = 16

// Dispatcher fans events out to per-user subscriber streams. Slow
// subscribers miss events rather than block the publisher.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]chan Event
	nextID      int64
	bufferSize  int
	logger      *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		subscribers: make(map[string]map[int64]chan Event),
		bufferSize:  defaultBufferSize,
		logger:      logger,
	}
}

// Subscribe streams events addressed to userID and broadcasts. The stream is
// closed when ctx ends or the returned cleanup runs.
func (d *Dispatcher) Subscribe(ctx context.Context, userID string) (<-chan Event, func()) {
	stream := make(chan Event, d.bufferSize)

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	if d.subscribers[userID] == nil {
		d.subscribers[userID] = make(map[int64]chan Event)
	}
	d.subscribers[userID][id] = stream
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.mu.Lock()
			if subscribers := d.subscribers[userID]; subscribers != nil {
				delete(subscribers, id)
				if len(subscribers) == 0 {
					delete(d.subscribers, userID)
				}
			}
			close(stream)
			d.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

// Notify publishes the event.
func (d *Dispatcher) Notify(event Event) {
	if event.Type == 0 {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.TypeName = event.Type.String()

	if !event.Success {
		d.logger.Info("[NOTIFY]",
			zap.String("type", event.TypeName),
			zap.String("user_id", event.UserID),
			zap.Strings("entity_ids", event.EntityIDs),
			zap.String("message", event.Message))
	}

	// Sends happen under the read lock so cleanup cannot close a stream mid-send.
	d.mu.RLock()
	defer d.mu.RUnlock()
	deliver := func(streams map[int64]chan Event) {
		for _, stream := range streams {
			select {
			case stream <- event:
			default:
			}
		}
	}
	if event.UserID == "" {
		for _, streams := range d.subscribers {
			deliver(streams)
		}
		return
	}
	deliver(d.subscribers[event.UserID])
	deliver(d.subscribers[""])
}
