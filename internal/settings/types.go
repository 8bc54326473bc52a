package settings

import (
	"time"
)

// Type is the declared data type of a setting.
type Type string

const (
	TypeBoolean Type = "boolean"
	TypeNumber  Type = "number"
	TypeString  Type = "string"
	TypeSelect  Type = "select"
	TypeRange   Type = "range"
	TypeColor   Type = "color"
)

// Source records where a value came from.
type Source string

const (
	SourceUser   Source = "user"
	SourceSystem Source = "system"
	SourceImport Source = "import"
)

// ValidateFunc is a custom validation rule on a definition. It returns
// a human-readable message when the value is rejected, or "" when it is
// accepted.
type ValidateFunc func(value any) string

// Option is one enum choice of a select setting.
type Option struct {
	Value any    `json:"value"`
	Label string `json:"label"`
}

// Definition is the immutable schema entry for one setting. Definitions
// are registered once at startup and never mutated or deleted.
type Definition struct {
	Key             string       `json:"key"`
	Category        string       `json:"category"`
	Label           string       `json:"label"`
	Description     string       `json:"description,omitempty"`
	Type            Type         `json:"type"`
	Default         any          `json:"default"`
	Validate        ValidateFunc `json:"-"`
	Options         []Option     `json:"options,omitempty"`
	Min             *float64     `json:"min,omitempty"`
	Max             *float64     `json:"max,omitempty"`
	Step            *float64     `json:"step,omitempty"`
	Dependencies    []string     `json:"dependencies,omitempty"`
	Advanced        bool         `json:"advanced"`
	RequiresRestart bool         `json:"requiresRestart"`
}

// Category groups related settings for presentation.
type Category struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Order       int    `json:"order"`
}

// Value is the mutable current value and provenance metadata for one
// setting key. Values are replaced whole on every write, never mutated
// in place.
type Value struct {
	Key          string    `json:"key"`
	Value        any       `json:"value"`
	IsDefault    bool      `json:"isDefault"`
	LastModified time.Time `json:"lastModified"`
	Source       Source    `json:"source"`
}

// Entry pairs a definition with its current value.
type Entry struct {
	Definition *Definition `json:"definition"`
	Value      Value       `json:"value"`
}

// SearchResult is an Entry with its relevance score.
type SearchResult struct {
	Entry
	Relevance float64 `json:"relevance"`
}

// ExportVersion is the settings export wire-format version.
const ExportVersion = "1.0"

// Export is the portable snapshot of all non-default values.
type Export struct {
	Version   string         `json:"version"`
	Timestamp int64          `json:"timestamp"` // Unix milliseconds
	Settings  map[string]any `json:"settings"`
	Metadata  ExportMetadata `json:"metadata"`
}

// ExportMetadata identifies the exporting application and host.
type ExportMetadata struct {
	AppVersion string `json:"appVersion"`
	Platform   string `json:"platform"`
	DeviceID   string `json:"deviceId,omitempty"`
}

// ImportResult is the per-key accounting of an import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// Metrics is the optional instrumentation hook the registry reports to.
type Metrics interface {
	RecordSettingWrite(source string)
	RecordValidationFailure(reason string)
	SetRegisteredSettings(n int)
}
