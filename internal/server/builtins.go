package server

import (
	"github.com/corestate/corestate/internal/settings"
)

func float64Ptr(f float64) *float64 { return &f }

// registerBuiltins installs the daemon's own settings. Applications
// embedding the engines register their domains on top of these.
func registerBuiltins(r *settings.Registry) {
	r.RegisterCategory(settings.Category{
		ID:    "general",
		Label: "General",
		Order: 1,
	})
	r.RegisterCategory(settings.Category{
		ID:          "logging",
		Label:       "Logging",
		Description: "Log output and verbosity",
		Order:       2,
	})
	r.RegisterCategory(settings.Category{
		ID:          "diagnostics",
		Label:       "Diagnostics",
		Description: "Error reporting and notifications",
		Order:       3,
	})

	r.RegisterSetting(settings.Definition{
		Key:         "general.telemetry",
		Category:    "general",
		Label:       "Anonymous usage reporting",
		Description: "Share anonymous usage statistics",
		Type:        settings.TypeBoolean,
		Default:     false,
	})
	r.RegisterSetting(settings.Definition{
		Key:      "logging.level",
		Category: "logging",
		Label:    "Log level",
		Type:     settings.TypeSelect,
		Default:  "info",
		Options: []settings.Option{
			{Value: "debug", Label: "Debug"},
			{Value: "info", Label: "Info"},
			{Value: "warn", Label: "Warning"},
			{Value: "error", Label: "Error"},
		},
		RequiresRestart: true,
	})
	r.RegisterSetting(settings.Definition{
		Key:             "logging.json",
		Category:        "logging",
		Label:           "JSON log format",
		Type:            settings.TypeBoolean,
		Default:         true,
		RequiresRestart: true,
	})
	r.RegisterSetting(settings.Definition{
		Key:         "diagnostics.notifications",
		Category:    "diagnostics",
		Label:       "Error notifications",
		Description: "Surface errors as notifications",
		Type:        settings.TypeBoolean,
		Default:     true,
	})
	r.RegisterSetting(settings.Definition{
		Key:          "diagnostics.autoReport",
		Category:     "diagnostics",
		Label:        "Automatic error reports",
		Description:  "Send diagnostic exports automatically",
		Type:         settings.TypeBoolean,
		Default:      false,
		Dependencies: []string{"general.telemetry"},
	})
	r.RegisterSetting(settings.Definition{
		Key:         "diagnostics.sampleRate",
		Category:    "diagnostics",
		Label:       "Report sample rate",
		Description: "Fraction of errors included in automatic reports",
		Type:        settings.TypeRange,
		Default:     float64(1),
		Min:         float64Ptr(0),
		Max:         float64Ptr(1),
		Step:        float64Ptr(0.05),
		Advanced:    true,
	})
}
