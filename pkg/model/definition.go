package model

import (
	"encoding/json"
	"fmt"
)

// Kind is the value type of a registered flag.
type Kind int

const (
	Boolean Kind = iota
	StringEnum
	FreeString
)

func (k Kind) String() string {
	switch k {
	case Boolean:
		return "boolean"
	case StringEnum:
		return "enum"
	case FreeString:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a resolved flag value, either a boolean or a string.
type Value struct {
	isString bool
	b        bool
	s        string
}

func BoolValue(b bool) Value     { return Value{b: b} }
func StringValue(s string) Value { return Value{isString: true, s: s} }

func (v Value) IsString() bool { return v.isString }

// Bool returns the boolean value. String values are never truthy.
func (v Value) Bool() bool { return !v.isString && v.b }

// Str returns the string value, or "" for boolean values.
func (v Value) Str() string {
	if !v.isString {
		return ""
	}
	return v.s
}

// Interface returns the value as bool or string.
func (v Value) Interface() any {
	if v.isString {
		return v.s
	}
	return v.b
}

func (v Value) String() string {
	if v.isString {
		return v.s
	}
	return fmt.Sprintf("%t", v.b)
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// FlagDefinition declares a recognized flag. Definitions are immutable after registration.
type FlagDefinition struct {
	Name          string
	Kind          Kind
	Default       Value
	AllowedValues []string
}

// Allows reports whether s is an acceptable value for a StringEnum definition.
func (d FlagDefinition) Allows(s string) bool {
	if d.Kind != StringEnum {
		return d.Kind == FreeString
	}
	for _, v := range d.AllowedValues {
		if v == s {
			return true
		}
	}
	return false
}
