package settings

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// ExportSettings snapshots every non-default value along with the wire
// format version and host metadata.
func (r *Registry) ExportSettings() Export {
	values := r.snapshot.Get()

	exported := make(map[string]any)
	for key, v := range values {
		r.stateMu.RLock()
		_, registered := r.defs[key]
		r.stateMu.RUnlock()
		if registered && !v.IsDefault {
			exported[key] = v.Value
		}
	}

	return Export{
		Version:   ExportVersion,
		Timestamp: r.clock.Now().UnixMilli(),
		Settings:  exported,
		Metadata: ExportMetadata{
			AppVersion: r.info.AppVersion,
			Platform:   r.info.Platform,
			DeviceID:   r.info.DeviceID,
		},
	}
}

// ImportSettings applies every key/value pair of an export through the
// normal validation pipeline with source=import. Keys without a
// registered definition are skipped; per-key failures are collected and
// never abort the rest of the import. An unrecognized export version is
// still attempted best-effort per key.
func (r *Registry) ImportSettings(ctx context.Context, exp Export) ImportResult {
	if exp.Version != ExportVersion {
		r.logger.WithField("version", exp.Version).Warn("Importing settings with unrecognized export version, attempting best-effort")
	}

	keys := make([]string, 0, len(exp.Settings))
	for key := range exp.Settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := ImportResult{}
	for _, key := range keys {
		r.stateMu.RLock()
		_, registered := r.defs[key]
		r.stateMu.RUnlock()
		if !registered {
			result.Skipped++
			continue
		}

		if err := r.SetWithSource(ctx, key, exp.Settings[key], SourceImport); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", key, err.Error()))
			continue
		}
		result.Imported++
	}

	r.logger.WithFields(logrus.Fields{
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"errors":   len(result.Errors),
	}).Info("Settings import completed")

	return result
}
