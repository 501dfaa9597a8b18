package service

import (
	"context"
	"time"

	"github.com/squidstack/squidflags/pkg/model"
	"github.com/squidstack/squidflags/pkg/session"
	"github.com/squidstack/squidflags/pkg/snapshot"
)

// IService exposes the flag snapshot and session lifecycle to clients.
type IService interface {
	Serve(ctx context.Context) error
}

// Snapshots is the read side of the snapshot publisher.
type Snapshots interface {
	Current() model.Snapshot
	Subscribe(fn snapshot.Subscriber) (unsubscribe func())
}

type Refresher interface {
	Refresh(ctx context.Context, reason string) error
}

// ConfigSource returns the raw flag document held by the backend.
type ConfigSource interface {
	Configuration() (string, error)
}

type Sessions interface {
	Login(ctx context.Context, creds session.Credentials) (model.Session, error)
	Logout(ctx context.Context)
	Session() model.Session
	ExpiresAt() (time.Time, bool)
}
