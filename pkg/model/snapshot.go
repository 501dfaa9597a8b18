package model

import "encoding/json"

// Snapshot is an immutable point-in-time view of every registered flag.
// The zero value is the empty snapshot.
type Snapshot struct {
	values map[string]Value
}

// NewSnapshot copies values into a new Snapshot.
func NewSnapshot(values map[string]Value) Snapshot {
	cp := make(map[string]Value, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Snapshot{values: cp}
}

func (s Snapshot) Len() int { return len(s.values) }

func (s Snapshot) Get(name string) (Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Bool returns the boolean value of name, false when absent.
func (s Snapshot) Bool(name string) bool {
	return s.values[name].Bool()
}

// String returns the string value of name, "" when absent.
func (s Snapshot) String(name string) string {
	return s.values[name].Str()
}

// Map returns a copy of the snapshot contents as plain bool/string values.
func (s Snapshot) Map() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v.Interface()
	}
	return out
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}
