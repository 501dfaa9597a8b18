package eval

import "github.com/squidstack/squidflags/pkg/store"

// IEvaluator resolves flag values from the configuration held in its state.
// ctx carries the targeting attributes of the current user.
type IEvaluator interface {
	// GetState encodes every stored flag along with the metadata of source.
	GetState(source string) (string, error)
	SetState(source string, payload string) (map[string]store.Notification, error)

	ResolveBooleanValue(flagKey string, defaultValue bool, ctx map[string]any) (value bool, reason string, err error)
	ResolveStringValue(flagKey string, defaultValue string, ctx map[string]any) (value string, reason string, err error)
}
