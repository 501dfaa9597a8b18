package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/squidstack/squidflags/pkg/flagsync"
	"github.com/squidstack/squidflags/pkg/loglevel"
	"github.com/squidstack/squidflags/pkg/model"
	"github.com/squidstack/squidflags/pkg/provider"
	"github.com/squidstack/squidflags/pkg/registry"
	"github.com/squidstack/squidflags/pkg/service"
	"github.com/squidstack/squidflags/pkg/session"
	"github.com/squidstack/squidflags/pkg/snapshot"
	"github.com/squidstack/squidflags/pkg/storage"
	"github.com/squidstack/squidflags/pkg/telemetry"
)

// ErrConfigFailed is returned by Start after the failure notice was served.
var ErrConfigFailed = errors.New(service.ConfigFailedNotice)

type Runtime struct {
	FlagKey         string
	RefreshInterval time.Duration
	// StorageTimeout bounds each session storage call; zero keeps the default.
	StorageTimeout time.Duration

	Provider             provider.IProvider
	Backend              storage.Backend
	Authenticator        session.Authenticator
	ServiceConfiguration *service.HTTPServiceConfiguration
	// Metrics defaults to a fresh registry.
	Metrics *prometheus.Registry
}

// Start boots flag sync and the session lifecycle and serves the HTTP API
// until ctx is done. If flag setup fails only the failure notice is served.
func (r *Runtime) Start(ctx context.Context) error {
	promReg := r.Metrics
	if promReg == nil {
		promReg = prometheus.NewRegistry()
	}
	metrics, err := telemetry.New(promReg)
	if err != nil {
		return fmt.Errorf("unable to register metrics: %w", err)
	}

	reg := registry.Default()
	pub := snapshot.NewPublisher()
	pub.Subscribe(loglevel.NewFollower(nil).Apply)
	pub.Subscribe(metrics.Published)

	ctrl := flagsync.New(r.Provider, reg, pub,
		flagsync.WithImpressionHandler(metrics.Impression),
		flagsync.WithRefreshObserver(metrics.Refresh),
	)

	store := storage.New(r.Backend)
	if r.StorageTimeout > 0 {
		store.WithTimeout(r.StorageTimeout)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warnf("unable to close session storage: %v", err)
		}
	}()
	sessions := session.NewManager(r.Authenticator, session.NewStore(store), ctrl,
		session.WithEventObserver(metrics.SessionEvent),
	)
	// the persisted user targets the very first evaluation
	sessions.WireTargeting()

	if err := ctrl.Initialize(ctx, r.FlagKey); err != nil {
		log.Errorf("%s: %v", service.ConfigFailedNotice, err)
		if serr := service.ServeFailure(ctx, r.ServiceConfiguration); serr != nil {
			log.Error(serr)
		}
		return ErrConfigFailed
	}
	cancelWatch := sessions.StartExpiryWatch(func() {
		// failures are logged by Refresh
		_ = ctrl.Refresh(context.Background(), session.ReasonExpired)
	})
	defer cancelWatch()

	svc := &service.HTTPService{
		HTTPServiceConfiguration: r.ServiceConfiguration,
		Snapshots:                pub,
		Refresher:                ctrl,
		Sessions:                 sessions,
		Config:                   ctrl,
		Gatherer:                 promReg,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Serve(gctx)
	})
	g.Go(func() error {
		if err := ctrl.StartPeriodic(r.RefreshInterval); err != nil {
			return errors.Join(err, ctrl.Stop())
		}
		<-gctx.Done()
		return ctrl.Stop()
	})
	return g.Wait()
}

// Evaluate sets up p once and returns the first published snapshot.
func Evaluate(ctx context.Context, p provider.IProvider, key string) (model.Snapshot, error) {
	pub := snapshot.NewPublisher()
	ctrl := flagsync.New(p, registry.Default(), pub)
	if err := ctrl.Initialize(ctx, key); err != nil {
		return model.Snapshot{}, err
	}
	defer func() {
		if err := ctrl.Stop(); err != nil {
			log.Warnf("unable to stop flag sync: %v", err)
		}
	}()
	return pub.Current(), nil
}
