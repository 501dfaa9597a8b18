package provider

import (
	"context"
	"time"

	"github.com/squidstack/squidflags/pkg/targeting"
)

// Impression records a single flag evaluation.
type Impression struct {
	Flag     string
	Value    any
	Reason   string
	Targeted bool
	Time     time.Time
}

// FetchStatus describes a configuration fetch pushed in the background.
type FetchStatus struct {
	Source  string
	Changed int
	Time    time.Time
}

// Options carries the callbacks a provider reports through. Every field is optional.
type Options struct {
	ImpressionHandler           func(Impression)
	ConfigurationFetchedHandler func(FetchStatus)
	ErrorHandler                func(error)
}

// IProvider is a remote flag backend.
type IProvider interface {
	// Setup performs the one-time connection to the flag source identified by key.
	Setup(ctx context.Context, key string, opts Options) error
	// Fetch refreshes the configuration from the source.
	Fetch(ctx context.Context) error
	SetTargetingContext(tc *targeting.Context)
	ResolveBooleanValue(flagKey string, defaultValue bool) (bool, error)
	ResolveStringValue(flagKey string, defaultValue string) (string, error)
	// Configuration returns the flag document currently held, as JSON.
	Configuration() (string, error)
	Close() error
}
