package model

import "encoding/json"

const (
	EnabledState  = "ENABLED"
	DisabledState = "DISABLED"
)

// Flag is a single flag as it appears in a remote flag document.
type Flag struct {
	State          string          `json:"state"`
	DefaultVariant string          `json:"defaultVariant"`
	Variants       map[string]any  `json:"variants"`
	Targeting      json.RawMessage `json:"targeting,omitempty"`
	Source         string          `json:"source,omitempty"`
	Key            string          `json:"-"`
}

// Document is the remote flag configuration as fetched from a provider.
type Document struct {
	Flags    map[string]Flag `json:"flags"`
	Metadata Metadata        `json:"metadata,omitempty"`
}

type Metadata = map[string]interface{}
