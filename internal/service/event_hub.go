package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/observability"
)

// EventPublisher accepts workbench state changes.
type EventPublisher interface {
	Publish(event dto.WorkbenchEvent)
}

// AllAssignments subscribes to events of every assignment.
const AllAssignments uint = 0

const subscriberBuffer = 32

type hubEnvelope struct {
	Source string             `json:"source"`
	Event  dto.WorkbenchEvent `json:"event"`
}

// EventHub fans events out to in-process subscribers and, when a NATS
// connection is configured, mirrors them to other workbench nodes.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.WorkbenchEvent]struct{}

	nats    *nats.Conn
	subject string
	nodeID  string
	now     func() time.Time
	logger  zerolog.Logger
}

// NewEventHub constructs an event hub. natsConn may be nil.
func NewEventHub(natsConn *nats.Conn, subject string, logger zerolog.Logger) *EventHub {
	return &EventHub{
		subscribers: make(map[uint]map[chan dto.WorkbenchEvent]struct{}),
		nats:        natsConn,
		subject:     subject,
		nodeID:      uuid.NewString(),
		now:         time.Now,
		logger:      logger.With().Str("component", "event_hub").Logger(),
	}
}

// Start consumes events published by other nodes until ctx is done.
func (h *EventHub) Start(ctx context.Context) {
	if h.nats == nil || h.subject == "" {
		return
	}

	sub, err := h.nats.Subscribe(h.subject, func(msg *nats.Msg) {
		h.handleRemote(msg.Data)
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to subscribe to workbench events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			h.logger.Warn().Err(err).Msg("failed to drain workbench events subscription")
		}
	}()
}

// Publish stamps the event and delivers it. Slow subscribers miss events
// rather than block the publisher.
func (h *EventHub) Publish(event dto.WorkbenchEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = h.now().UTC()
	}

	h.broadcast(event)

	if h.nats == nil || h.subject == "" {
		return
	}
	payload, err := json.Marshal(hubEnvelope{Source: h.nodeID, Event: event})
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to encode workbench event")
		return
	}
	if err := h.nats.Publish(h.subject, payload); err != nil {
		h.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to mirror workbench event")
	}
}

// Subscribe registers a subscriber for one assignment, or AllAssignments.
// The returned function unsubscribes and closes the channel.
func (h *EventHub) Subscribe(assignmentID uint) (<-chan dto.WorkbenchEvent, func()) {
	ch := make(chan dto.WorkbenchEvent, subscriberBuffer)

	h.mu.Lock()
	if _, exists := h.subscribers[assignmentID]; !exists {
		h.subscribers[assignmentID] = make(map[chan dto.WorkbenchEvent]struct{})
	}
	h.subscribers[assignmentID][ch] = struct{}{}
	h.mu.Unlock()
	observability.EventSubscribers().Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.unsubscribe(assignmentID, ch)
			observability.EventSubscribers().Dec()
		})
	}
}

func (h *EventHub) unsubscribe(assignmentID uint, ch chan dto.WorkbenchEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subscribers, ok := h.subscribers[assignmentID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(h.subscribers, assignmentID)
		}
	}
}

func (h *EventHub) broadcast(event dto.WorkbenchEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	deliver := func(subscribers map[chan dto.WorkbenchEvent]struct{}) {
		for ch := range subscribers {
			select {
			case ch <- event:
			default:
			}
		}
	}

	deliver(h.subscribers[event.AssignmentID])
	if event.AssignmentID != AllAssignments {
		deliver(h.subscribers[AllAssignments])
	}
}

func (h *EventHub) handleRemote(payload []byte) {
	var envelope hubEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		h.logger.Warn().Err(err).Msg("invalid workbench event payload")
		return
	}
	if envelope.Source == h.nodeID {
		return
	}
	h.broadcast(envelope.Event)
}

func publish(publisher EventPublisher, event dto.WorkbenchEvent) {
	if publisher != nil {
		publisher.Publish(event)
	}
}
