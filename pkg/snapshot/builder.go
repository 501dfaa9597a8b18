package snapshot

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/squidstack/squidflags/pkg/model"
	"github.com/squidstack/squidflags/pkg/registry"
)

// Resolver reads single flag values from the remote backend. Each call may
// record an impression, so callers evaluate a flag at most once per build.
type Resolver interface {
	ResolveBooleanValue(flagKey string, defaultValue bool) (bool, error)
	ResolveStringValue(flagKey string, defaultValue string) (string, error)
}

// Evaluate resolves every registered flag exactly once, in registration order.
// A flag whose resolution fails takes its default.
func Evaluate(reg *registry.Registry, remote Resolver) model.Snapshot {
	defs := reg.Definitions()
	values := make(map[string]model.Value, len(defs))
	for _, def := range defs {
		raw, err := resolveRemote(def, remote)
		if err != nil {
			log.WithField("flag", def.Name).Warnf("flag evaluation failed, using default: %v", err)
			values[def.Name] = def.Default
			continue
		}
		values[def.Name] = Resolve(def, raw)
	}
	return model.NewSnapshot(values)
}

func resolveRemote(def model.FlagDefinition, remote Resolver) (raw any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluator panicked: %v", r)
		}
	}()

	if def.Kind == model.Boolean {
		return remote.ResolveBooleanValue(def.Name, def.Default.Bool())
	}
	return remote.ResolveStringValue(def.Name, def.Default.Str())
}

// Resolve coerces a remote value into the definition's kind. Values of the
// wrong type, and enum values outside the allowed set, yield the default.
func Resolve(def model.FlagDefinition, remote any) model.Value {
	switch def.Kind {
	case model.Boolean:
		if b, ok := remote.(bool); ok {
			return model.BoolValue(b)
		}
	case model.StringEnum:
		if s, ok := remote.(string); ok && def.Allows(s) {
			return model.StringValue(s)
		}
	case model.FreeString:
		if s, ok := remote.(string); ok {
			return model.StringValue(s)
		}
	}
	if remote != nil {
		log.WithField("flag", def.Name).Debugf("remote value %v not acceptable for %s flag", remote, def.Kind)
	}
	return def.Default
}
