package settings

import (
	"fmt"
	"sort"
	"strings"
)

// ByCategory returns definition/value pairs for every setting in the
// category, sorted by label ascending with locale-aware comparison.
func (r *Registry) ByCategory(categoryID string) []Entry {
	r.stateMu.RLock()
	defs := make([]*Definition, 0)
	for _, def := range r.defs {
		if def.Category == categoryID {
			defs = append(defs, def)
		}
	}
	r.stateMu.RUnlock()

	values := r.snapshot.Get()
	entries := make([]Entry, 0, len(defs))
	for _, def := range defs {
		entries = append(entries, Entry{Definition: def, Value: values[def.Key]})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return r.collator.CompareString(entries[i].Definition.Label, entries[j].Definition.Label) < 0
	})
	return entries
}

// Categories returns all registered categories sorted by order
// ascending.
func (r *Registry) Categories() []Category {
	r.stateMu.RLock()
	cats := make([]Category, 0, len(r.cats))
	for _, c := range r.cats {
		cats = append(cats, *c)
	}
	r.stateMu.RUnlock()

	sort.SliceStable(cats, func(i, j int) bool {
		if cats[i].Order != cats[j].Order {
			return cats[i].Order < cats[j].Order
		}
		return cats[i].ID < cats[j].ID
	})
	return cats
}

// Search tokenizes the query on whitespace and scores every setting by
// the sum, over matched tokens, of len(token)/len(haystack), where the
// haystack concatenates label, description, key, and category label.
// Only settings with a positive score are returned, highest first.
func (r *Registry) Search(query string) []SearchResult {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return nil
	}

	r.stateMu.RLock()
	defs := make([]*Definition, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, def)
	}
	catLabels := make(map[string]string, len(r.cats))
	for id, c := range r.cats {
		catLabels[id] = c.Label
	}
	r.stateMu.RUnlock()

	values := r.snapshot.Get()

	var results []SearchResult
	for _, def := range defs {
		// Fields are joined with spaces so a token cannot match across
		// a field boundary.
		haystack := strings.ToLower(strings.Join([]string{
			def.Label, def.Description, def.Key, catLabels[def.Category],
		}, " "))
		if len(strings.TrimSpace(haystack)) == 0 {
			continue
		}

		var relevance float64
		for _, token := range tokens {
			if strings.Contains(haystack, token) {
				relevance += float64(len(token)) / float64(len(haystack))
			}
		}
		if relevance > 0 {
			results = append(results, SearchResult{
				Entry:     Entry{Definition: def, Value: values[def.Key]},
				Relevance: relevance,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	return results
}

// ValidateDependencies reports, for each dependency of key's definition,
// a human-readable error when the dependency is a boolean setting that
// is currently disabled, or when the dependency key is unknown. It is a
// pure read-only check and never blocks a write.
func (r *Registry) ValidateDependencies(key string) []string {
	r.stateMu.RLock()
	def, ok := r.defs[key]
	r.stateMu.RUnlock()
	if !ok {
		return []string{fmt.Sprintf("setting %s is not registered", key)}
	}

	values := r.snapshot.Get()

	var errs []string
	for _, depKey := range def.Dependencies {
		r.stateMu.RLock()
		dep, ok := r.defs[depKey]
		r.stateMu.RUnlock()
		if !ok {
			errs = append(errs, fmt.Sprintf("%s depends on unknown setting %s", def.Label, depKey))
			continue
		}
		if dep.Type != TypeBoolean {
			continue
		}
		if enabled, _ := values[depKey].Value.(bool); !enabled {
			errs = append(errs, fmt.Sprintf("%s requires %s to be enabled", def.Label, dep.Label))
		}
	}
	return errs
}

// RestartRequired returns the keys whose definition requires a restart
// and whose current value is non-default.
func (r *Registry) RestartRequired() []string {
	values := r.snapshot.Get()

	var keys []string
	for _, key := range r.sortedKeys() {
		r.stateMu.RLock()
		def := r.defs[key]
		r.stateMu.RUnlock()
		if !def.RequiresRestart {
			continue
		}
		if v, ok := values[key]; ok && !v.IsDefault {
			keys = append(keys, key)
		}
	}
	return keys
}
