// Package flagsync keeps the published flag snapshot in step with the remote flag backend.
package flagsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"

	"github.com/squidstack/squidflags/pkg/provider"
	"github.com/squidstack/squidflags/pkg/registry"
	"github.com/squidstack/squidflags/pkg/snapshot"
	"github.com/squidstack/squidflags/pkg/targeting"
)

// Publication reasons used by the controller itself.
const (
	ReasonReady    = "ready"
	ReasonFetched  = "fetched"
	ReasonInterval = "interval"
)

type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
	Refreshing
	Errored
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Refreshing:
		return "refreshing"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	ErrNotReady           = errors.New("flag sync is not initialized")
	ErrAlreadyInitialized = errors.New("flag sync is already initialized")
)

// RefreshObserver is told about every completed sync cycle.
type RefreshObserver func(reason string, err error)

// Controller drives setup and re-fetching of remote flags and republishes
// snapshots. Publications follow the order in which cycles started: a cycle
// completing after a newer one has published is discarded.
type Controller struct {
	provider  provider.IProvider
	registry  *registry.Registry
	publisher *snapshot.Publisher

	impressions func(provider.Impression)
	observer    RefreshObserver

	mu       sync.Mutex
	state    State
	issued   uint64
	inflight int
	tc       *targeting.Context

	commitMu  sync.Mutex
	published uint64

	cron *cron.Cron
}

type Option func(*Controller)

// WithImpressionHandler receives every flag evaluation made by the backend.
func WithImpressionHandler(h func(provider.Impression)) Option {
	return func(c *Controller) { c.impressions = h }
}

func WithRefreshObserver(o RefreshObserver) Option {
	return func(c *Controller) { c.observer = o }
}

func New(p provider.IProvider, reg *registry.Registry, pub *snapshot.Publisher, opts ...Option) *Controller {
	c := &Controller{
		provider:  p,
		registry:  reg,
		publisher: pub,
		tc:        targeting.New(nil),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialize performs the one-time setup against the flag source and publishes
// the first snapshot. A failure here means the application cannot boot.
func (c *Controller) Initialize(ctx context.Context, key string) error {
	c.mu.Lock()
	if c.state != Uninitialized {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.state = Initializing
	c.provider.SetTargetingContext(c.tc)
	c.mu.Unlock()

	err := c.provider.Setup(ctx, key, provider.Options{
		ImpressionHandler:           c.onImpression,
		ConfigurationFetchedHandler: c.onFetched,
		ErrorHandler: func(err error) {
			log.Warnf("flag backend error: %v", err)
		},
	})
	if err != nil {
		c.mu.Lock()
		c.state = Uninitialized
		c.mu.Unlock()
		c.observe(ReasonReady, err)
		return fmt.Errorf("flag backend setup failed: %w", err)
	}

	seq := c.begin(false)
	c.commit(seq, ReasonReady)
	c.end(nil)
	c.observe(ReasonReady, nil)
	log.WithFields(log.Fields{
		"namespace": c.registry.Namespace(),
		"flags":     c.registry.Len(),
	}).Info("flag sync ready")
	return nil
}

// Refresh re-fetches the remote configuration and republishes with reason.
// On failure the last published snapshot is kept and the error is returned
// after being logged.
func (c *Controller) Refresh(ctx context.Context, reason string) error {
	c.mu.Lock()
	if c.state == Uninitialized || c.state == Initializing {
		c.mu.Unlock()
		return ErrNotReady
	}
	c.mu.Unlock()

	seq := c.begin(true)
	logger := log.WithFields(log.Fields{"reason": reason, "cycle": uuid.NewString(), "seq": seq})
	logger.Debug("refreshing flags")

	if err := c.provider.Fetch(ctx); err != nil {
		logger.Warnf("flag refresh failed, keeping last snapshot: %v", err)
		c.end(err)
		c.observe(reason, err)
		return fmt.Errorf("flag refresh failed: %w", err)
	}

	c.commit(seq, reason)
	c.end(nil)
	c.observe(reason, nil)
	return nil
}

// Configuration returns the flag document last fetched by the backend.
func (c *Controller) Configuration() (string, error) {
	if s := c.State(); s == Uninitialized || s == Initializing {
		return "", ErrNotReady
	}
	return c.provider.Configuration()
}

// SetTargetingContext installs the attribute getters used by later evaluations.
func (c *Controller) SetTargetingContext(tc *targeting.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tc = tc
	c.provider.SetTargetingContext(tc)
	log.WithField("attributes", tc.Names()).Debug("targeting context installed")
}

// StartPeriodic refreshes on a fixed interval until Stop.
func (c *Controller) StartPeriodic(interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	sched := cron.New()
	err := sched.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		// failures are logged by Refresh
		_ = c.Refresh(context.Background(), ReasonInterval)
	})
	if err != nil {
		return fmt.Errorf("unable to schedule flag refresh: %w", err)
	}

	c.mu.Lock()
	if c.cron != nil {
		c.cron.Stop()
	}
	c.cron = sched
	c.mu.Unlock()

	sched.Start()
	log.WithField("interval", interval).Info("periodic flag refresh started")
	return nil
}

// Stop ends periodic refreshes and releases the backend.
func (c *Controller) Stop() error {
	c.mu.Lock()
	sched := c.cron
	c.cron = nil
	c.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	return c.provider.Close()
}

func (c *Controller) begin(refreshing bool) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	c.inflight++
	if refreshing {
		c.state = Refreshing
	}
	return c.issued
}

func (c *Controller) end(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	switch {
	case err != nil:
		c.state = Errored
	case c.inflight == 0:
		c.state = Ready
	}
}

// commit evaluates every flag once and publishes unless a newer cycle already has.
func (c *Controller) commit(seq uint64, reason string) {
	snap := snapshot.Evaluate(c.registry, c.provider)

	c.commitMu.Lock()
	defer c.commitMu.Unlock()
	if seq < c.published {
		log.WithFields(log.Fields{"reason": reason, "seq": seq}).Debug("discarding out-of-order flag snapshot")
		return
	}
	c.published = seq
	c.publisher.Publish(snap, reason)
}

func (c *Controller) onFetched(status provider.FetchStatus) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == Uninitialized || state == Initializing {
		return
	}

	log.WithFields(log.Fields{"source": status.Source, "changed": status.Changed}).Info("flag configuration fetched")
	seq := c.begin(false)
	c.commit(seq, ReasonFetched)
	c.end(nil)
	c.observe(ReasonFetched, nil)
}

func (c *Controller) onImpression(imp provider.Impression) {
	log.WithFields(log.Fields{
		"flag":      imp.Flag,
		"value":     imp.Value,
		"reason":    imp.Reason,
		"targeting": imp.Targeted,
	}).Trace("impression")
	if c.impressions != nil {
		c.impressions(imp)
	}
}

func (c *Controller) observe(reason string, err error) {
	if c.observer != nil {
		c.observer(reason, err)
	}
}
