// Package strategies provides the built-in strategy catalogue used by the command line.
package strategies

// ConfigField describes a configurable parameter for a strategy.
type ConfigField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// Metadata captures descriptive information about a strategy.
type Metadata struct {
	Name        string        `json:"name"`
	DisplayName string        `json:"displayName"`
	Description string        `json:"description,omitempty"`
	Config      []ConfigField `json:"config"`
}

// CloneMetadata returns a copy of the metadata with cloned slices.
func CloneMetadata(meta Metadata) Metadata {
	clone := meta
	if len(meta.Config) > 0 {
		clone.Config = append([]ConfigField(nil), meta.Config...)
	}
	return clone
}
