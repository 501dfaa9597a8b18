package snapshot

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/squidstack/squidflags/pkg/model"
)

const InitialReason = "initial"

// Subscriber receives every published snapshot with the reason it was published.
type Subscriber func(reason string, snap model.Snapshot)

// Publisher holds the current snapshot and fans out replacements to subscribers.
// Snapshots are replaced as a whole, never modified.
type Publisher struct {
	mu      sync.RWMutex
	current model.Snapshot
	subs    []*subscription

	// serializes deliveries so subscribers see publications in order
	deliver sync.Mutex
}

type subscription struct {
	id     string
	fn     Subscriber
	active atomic.Bool
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// Current returns the latest snapshot, empty before the first Publish.
func (p *Publisher) Current() model.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Publish replaces the current snapshot and synchronously notifies every
// subscriber in registration order.
func (p *Publisher) Publish(snap model.Snapshot, reason string) {
	p.deliver.Lock()
	defer p.deliver.Unlock()

	p.mu.Lock()
	p.current = snap
	subs := make([]*subscription, len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, s := range subs {
		if s.active.Load() {
			s.notify(reason, snap)
		}
	}
}

// Subscribe registers fn and calls it with the current snapshot before
// returning. The returned function deregisters fn and may be called repeatedly.
// fn must not call Subscribe itself.
func (p *Publisher) Subscribe(fn Subscriber) (unsubscribe func()) {
	s := &subscription{id: uuid.NewString(), fn: fn}
	s.active.Store(true)

	p.deliver.Lock()
	p.mu.Lock()
	p.subs = append(p.subs, s)
	current := p.current
	p.mu.Unlock()
	s.notify(InitialReason, current)
	p.deliver.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { p.unregister(s) })
	}
}

func (p *Publisher) unregister(s *subscription) {
	s.active.Store(false)

	p.mu.Lock()
	defer p.mu.Unlock()
	for i, sub := range p.subs {
		if sub == s {
			p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (p *Publisher) Subscribers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

func (s *subscription) notify(reason string, snap model.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("subscriber", s.id).Errorf("subscriber failed on %q: %v", reason, r)
		}
	}()
	s.fn(reason, snap)
}
