package registry

import (
	"errors"
	"fmt"

	"github.com/squidstack/squidflags/pkg/model"
)

var ErrDuplicateFlag = errors.New("flag already registered")

// Registry is the fixed, ordered set of flags the process recognizes.
type Registry struct {
	namespace string
	defs      []model.FlagDefinition
	index     map[string]int
}

func New(namespace string) *Registry {
	return &Registry{
		namespace: namespace,
		index:     map[string]int{},
	}
}

func (r *Registry) Namespace() string { return r.namespace }

// Register adds a definition. Names are unique and a StringEnum default must be
// one of its allowed values.
func (r *Registry) Register(def model.FlagDefinition) error {
	if def.Name == "" {
		return errors.New("flag name must not be empty")
	}
	if _, ok := r.index[def.Name]; ok {
		return fmt.Errorf("%s: %w", def.Name, ErrDuplicateFlag)
	}
	switch def.Kind {
	case model.Boolean:
		if def.Default.IsString() {
			return fmt.Errorf("%s: boolean flag needs a boolean default", def.Name)
		}
	case model.StringEnum:
		if len(def.AllowedValues) == 0 {
			return fmt.Errorf("%s: enum flag needs allowed values", def.Name)
		}
		if !def.Default.IsString() || !def.Allows(def.Default.Str()) {
			return fmt.Errorf("%s: default %q is not an allowed value", def.Name, def.Default)
		}
	case model.FreeString:
		if !def.Default.IsString() {
			return fmt.Errorf("%s: string flag needs a string default", def.Name)
		}
	default:
		return fmt.Errorf("%s: unknown kind %s", def.Name, def.Kind)
	}

	def.AllowedValues = append([]string(nil), def.AllowedValues...)
	r.index[def.Name] = len(r.defs)
	r.defs = append(r.defs, def)
	return nil
}

// MustRegister is Register for static declarations.
func (r *Registry) MustRegister(defs ...model.FlagDefinition) *Registry {
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Definitions returns the definitions in registration order.
func (r *Registry) Definitions() []model.FlagDefinition {
	out := make([]model.FlagDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

func (r *Registry) Lookup(name string) (model.FlagDefinition, bool) {
	i, ok := r.index[name]
	if !ok {
		return model.FlagDefinition{}, false
	}
	return r.defs[i], true
}

func (r *Registry) Len() int { return len(r.defs) }
