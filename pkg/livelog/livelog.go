// Package livelog broadcasts pipeline milestones — incident_created,
// action_planned, action_executing, action_completed, incident_resolved —
// to whatever is watching an incident live, mirrored through Redis pub/sub
// so any process instance can serve a subscriber regardless of which
// instance is actually running that incident (spec.md §6).
package livelog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType names a livelog milestone.
type EventType string

const (
	EventIncidentCreated EventType = "incident_created"
	EventActionPlanned   EventType = "action_planned"
	EventActionExecuting EventType = "action_executing"
	EventActionCompleted EventType = "action_completed"
	EventIncidentResolved EventType = "incident_resolved"
)

const channelPrefix = "sentinel:livelog:"

// Event is one milestone delivered to subscribers of an incident's log.
type Event struct {
	Type       EventType `json:"type"`
	IncidentID string    `json:"incident_id"`
	At         time.Time `json:"at"`
	Detail     string    `json:"detail,omitempty"`
}

func channel(incidentID string) string {
	return channelPrefix + incidentID
}

// Broadcaster publishes Events for an incident and mirrors them through
// Redis. Delivery is at-most-once: a subscriber that isn't listening when
// an event is published simply never sees it, matching spec.md §6's
// explicit non-goal of a durable replay log for livelog.
type Broadcaster struct {
	rdb    *redis.Client
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

// NewBroadcaster builds a Broadcaster over an existing Redis client.
func NewBroadcaster(rdb *redis.Client, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		rdb:         rdb,
		logger:      logger,
		subscribers: make(map[string]map[chan Event]struct{}),
	}
}

// Publish emits an Event to in-process subscribers of incidentID and
// mirrors it to Redis so subscribers attached to a different process
// instance receive it too.
func (b *Broadcaster) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	for ch := range b.subscribers[evt.IncidentID] {
		select {
		case ch <- evt:
		default:
			// Slow subscriber — drop rather than block the pipeline.
		}
	}
	b.mu.RUnlock()

	data, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error("marshal livelog event", zap.Error(err))
		return
	}
	if err := b.rdb.Publish(ctx, channel(evt.IncidentID), data).Err(); err != nil {
		b.logger.Warn("publish livelog event to redis", zap.Error(err), zap.String("incident_id", evt.IncidentID))
	}
}

// Subscribe registers an in-process channel for incidentID's events and
// returns an unsubscribe function. Buffered by 32 so a burst of milestones
// doesn't immediately trip the drop-on-full path above.
func (b *Broadcaster) Subscribe(incidentID string) (<-chan Event, func()) {
	ch := make(chan Event, 32)

	b.mu.Lock()
	if b.subscribers[incidentID] == nil {
		b.subscribers[incidentID] = make(map[chan Event]struct{})
	}
	b.subscribers[incidentID][ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subscribers[incidentID], ch)
		if len(b.subscribers[incidentID]) == 0 {
			delete(b.subscribers, incidentID)
		}
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsubscribe
}

// SubscribeRemote listens on Redis for incidentID's events, for a process
// instance that didn't originate them. It blocks until ctx is cancelled.
func (b *Broadcaster) SubscribeRemote(ctx context.Context, incidentID string, onEvent func(Event)) error {
	pubsub := b.rdb.Subscribe(ctx, channel(incidentID))
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return fmt.Errorf("livelog redis subscription for %s closed", incidentID)
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.logger.Warn("unmarshal livelog event", zap.Error(err))
				continue
			}
			onEvent(evt)
		}
	}
}
