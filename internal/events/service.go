// Package events fans pipeline progress out to subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rmitchellscott/ditherworks/internal/logging"
	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
	"github.com/rmitchellscott/ditherworks/internal/workerproto"
)

// DefaultBuffer is the per-subscriber queue length
const DefaultBuffer = 64

// Event is a pipeline progress notification for one job
type Event struct {
	Type      workerproto.MessageType `json:"type"`
	JobID     string                  `json:"job_id"`
	StageID   string                  `json:"stage_id"`
	Title     string                  `json:"title"`
	Image     *pixbuf.Buffer[float32] `json:"-"`
	Error     string                  `json:"error,omitempty"`
	Duration  time.Duration           `json:"duration"`
	Timestamp time.Time               `json:"timestamp"`
}

// FromMessage converts an orchestrator message into an event for jobID
func FromMessage(jobID string, msg workerproto.Message) Event {
	event := Event{
		Type:      msg.Type,
		JobID:     jobID,
		StageID:   msg.ID,
		Title:     msg.Title,
		Image:     msg.Image,
		Duration:  msg.Duration,
		Timestamp: time.Now().UTC(),
	}
	if msg.Err != nil {
		event.Error = msg.Err.Error()
	}
	return event
}

// Subscriber receives events on its channel until unsubscribed
type Subscriber struct {
	ID     string
	JobID  string // empty for every job
	Events <-chan Event

	events  chan Event
	dropped atomic.Int64
}

// Dropped returns how many events were discarded because the subscriber
// fell behind
func (s *Subscriber) Dropped() int { return int(s.dropped.Load()) }

// Service manages subscribers and broadcasts
type Service struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
}

// NewService creates a new event service
func NewService() *Service {
	return &Service{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a subscriber for a single job
func (s *Service) Subscribe(jobID string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	sub := &Subscriber{
		ID:     uuid.NewString(),
		JobID:  jobID,
		Events: ch,
		events: ch,
	}

	s.mu.Lock()
	s.subscribers[sub.ID] = sub
	s.mu.Unlock()

	logging.DebugWithComponent(logging.ComponentEvents, "Subscriber added", "subscriber_id", sub.ID, "job_id", jobID)
	return sub
}

// SubscribeAll registers a subscriber for every job
func (s *Service) SubscribeAll(buffer int) *Subscriber {
	return s.Subscribe("", buffer)
}

// Unsubscribe removes a subscriber and closes its channel
func (s *Service) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, exists := s.subscribers[id]; exists {
		close(sub.events)
		delete(s.subscribers, id)
		logging.DebugWithComponent(logging.ComponentEvents, "Subscriber removed", "subscriber_id", id)
	}
}

// Publish delivers an event to every matching subscriber without blocking.
// Subscribers with a full queue miss the event.
func (s *Service) Publish(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscribers {
		if sub.JobID != "" && sub.JobID != event.JobID {
			continue
		}
		select {
		case sub.events <- event:
		default:
			sub.dropped.Add(1)
			logging.WarnWithComponent(logging.ComponentEvents, "Subscriber queue full, dropping event",
				"subscriber_id", sub.ID, "job_id", event.JobID, "stage_id", event.StageID, "type", event.Type)
		}
	}
}

// ClientCount returns the number of subscribers
func (s *Service) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// JobClientCount returns the number of subscribers that would receive
// events for jobID
func (s *Service) JobClientCount(jobID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sub := range s.subscribers {
		if sub.JobID == "" || sub.JobID == jobID {
			count++
		}
	}
	return count
}
