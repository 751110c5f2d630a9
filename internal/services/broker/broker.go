// -----------------------------------------------------------------------
// Progress Broker - Per-job pub/sub with last-state-wins coalescing
// -----------------------------------------------------------------------

package broker

import (
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
)

// Service implements interfaces.ProgressBroker. Each subscriber owns a
// one-slot mailbox: a pending unread event is replaced by a newer one
// unless it is terminal, so slow subscribers never back-pressure the
// publisher and always observe the latest state. Terminal events close
// the stream after delivery.
type Service struct {
	mu        sync.Mutex
	subs      map[string]map[*subscription]struct{}
	snapshots map[string]models.ProgressEvent
	logger    arbor.ILogger
}

// NewService creates a new progress broker
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		subs:      make(map[string]map[*subscription]struct{}),
		snapshots: make(map[string]models.ProgressEvent),
		logger:    logger,
	}
}

type subscription struct {
	jobID  string
	events chan models.ProgressEvent
	once   sync.Once
	broker *Service
}

// Events returns the subscriber's event stream. The channel is closed
// after a terminal event is delivered or the subscription is closed.
func (s *subscription) Events() <-chan models.ProgressEvent {
	return s.events
}

// Close detaches the subscription. Idempotent.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.broker.detach(s)
		close(s.events)
	})
}

// closeDelivered closes the stream leaving any buffered terminal event
// readable. Called with the broker lock held, after the terminal event
// has been placed in the mailbox.
func (s *subscription) closeDelivered() {
	s.once.Do(func() {
		close(s.events)
	})
}

// Publish delivers the event to all subscribers of its job and updates
// the last-snapshot cache. Never blocks.
func (b *Service) Publish(event models.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.snapshots[event.JobID] = event

	for sub := range b.subs[event.JobID] {
		b.deliver(sub, event)
		if event.Terminal() {
			sub.closeDelivered()
		}
	}
	if event.Terminal() {
		delete(b.subs, event.JobID)
	}
}

// deliver places the event into the subscriber's one-slot mailbox,
// coalescing an unread non-terminal event. Caller holds the broker lock,
// which makes the drain-and-refill below race-free.
func (b *Service) deliver(sub *subscription, event models.ProgressEvent) {
	select {
	case sub.events <- event:
		return
	default:
	}
	select {
	case old := <-sub.events:
		if old.Terminal() {
			// Terminal events are never coalesced away.
			sub.events <- old
			return
		}
		sub.events <- event
	default:
		sub.events <- event
	}
}

// Subscribe opens a stream for the given job. The first event is the
// cached last snapshot when one exists; a cached terminal snapshot ends
// the stream immediately after delivery.
func (b *Service) Subscribe(jobID string) interfaces.Subscription {
	sub := &subscription{
		jobID:  jobID,
		events: make(chan models.ProgressEvent, 1),
		broker: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if snapshot, ok := b.snapshots[jobID]; ok {
		sub.events <- snapshot
		if snapshot.Terminal() {
			sub.closeDelivered()
			return sub
		}
	}

	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[*subscription]struct{})
	}
	b.subs[jobID][sub] = struct{}{}
	return sub
}

// Snapshot returns the cached last event for a job.
func (b *Service) Snapshot(jobID string) (models.ProgressEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	event, ok := b.snapshots[jobID]
	return event, ok
}

// Forget drops the snapshot cache for a job. Called by the retention
// sweeper when the record is deleted.
func (b *Service) Forget(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.snapshots, jobID)
}

func (b *Service) detach(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sub.jobID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.jobID)
		}
	}
}
