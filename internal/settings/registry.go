// Package settings implements the schema-validated, reactive, persisted
// configuration registry. Definitions and categories are registered at
// startup; current values live in an immutable snapshot that is replaced
// whole on every write and published to subscribers before persistence.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/corestate/corestate/internal/platform"
	"github.com/corestate/corestate/internal/store"
	"github.com/corestate/corestate/internal/stream"
)

// DefaultStorageName is the blob name the value map persists under.
const DefaultStorageName = "settings-v1"

// Registry is the settings engine. All mutating operations are
// serialized on a single writer lane; reads always see the latest fully
// published snapshot.
type Registry struct {
	// writeMu is the single writer lane: it serializes the
	// validate → replace-snapshot → persist sequence.
	writeMu sync.Mutex

	// stateMu guards the definition and category maps.
	stateMu sync.RWMutex
	defs    map[string]*Definition
	cats    map[string]*Category

	snapshot *stream.Value[map[string]Value]

	store       store.BlobStore
	storageName string
	logger      *logrus.Logger
	clock       platform.Clock
	info        platform.Info
	metrics     Metrics
	collator    *collate.Collator
}

// RegistryOptions configures a Registry. Store is required; everything
// else has a sensible default.
type RegistryOptions struct {
	Store       store.BlobStore
	StorageName string
	Logger      *logrus.Logger
	Clock       platform.Clock
	Info        platform.Info
	Metrics     Metrics
}

// NewRegistry creates a registry and restores any persisted values. A
// missing or unparsable blob is treated as no prior state.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Clock == nil {
		opts.Clock = platform.SystemClock{}
	}
	if opts.StorageName == "" {
		opts.StorageName = DefaultStorageName
	}

	r := &Registry{
		defs:        make(map[string]*Definition),
		cats:        make(map[string]*Category),
		store:       opts.Store,
		storageName: opts.StorageName,
		logger:      opts.Logger,
		clock:       opts.Clock,
		info:        opts.Info,
		metrics:     opts.Metrics,
		collator:    collate.New(language.Und),
	}
	r.snapshot = stream.NewValue(r.restore())

	return r
}

// restore loads the persisted value map. Fail-open: any read or decode
// failure yields an empty map.
func (r *Registry) restore() map[string]Value {
	values := make(map[string]Value)

	data, err := r.store.Get(context.Background(), r.storageName)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.WithError(err).Warn("Failed to read persisted settings, starting from defaults")
		}
		return values
	}

	var persisted []Value
	if err := json.Unmarshal(data, &persisted); err != nil {
		r.logger.WithError(err).Warn("Persisted settings blob is unparsable, starting from defaults")
		return values
	}

	for _, v := range persisted {
		values[v.Key] = v
	}

	r.logger.WithField("count", len(values)).Info("Settings restored from store")
	return values
}

// RegisterCategory inserts or overwrites a category descriptor.
func (r *Registry) RegisterCategory(cat Category) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	c := cat
	r.cats[cat.ID] = &c
}

// RegisterSetting inserts (or overwrites) a definition. If no value
// exists for the key yet, one is seeded from the default; a value that
// survived a restart or an earlier registration is left untouched.
func (r *Registry) RegisterSetting(def Definition) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.stateMu.Lock()
	d := def
	r.defs[def.Key] = &d
	count := len(r.defs)
	r.stateMu.Unlock()

	cur := r.snapshot.Get()
	if _, exists := cur[def.Key]; !exists {
		next := cloneValues(cur)
		next[def.Key] = Value{
			Key:          def.Key,
			Value:        def.Default,
			IsDefault:    true,
			LastModified: r.clock.Now(),
			Source:       SourceSystem,
		}
		r.snapshot.Set(next)
	}

	if r.metrics != nil {
		r.metrics.SetRegisteredSettings(count)
	}
}

// Definition returns the registered definition for key, or nil.
func (r *Registry) Definition(key string) *Definition {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.defs[key]
}

// Get returns the current value for key. The second return is false for
// keys with no registered definition.
func (r *Registry) Get(key string) (any, bool) {
	r.stateMu.RLock()
	_, registered := r.defs[key]
	r.stateMu.RUnlock()
	if !registered {
		return nil, false
	}

	if v, ok := r.snapshot.Get()[key]; ok {
		return v.Value, true
	}
	return nil, false
}

// GetValue returns the full value record for key.
func (r *Registry) GetValue(key string) (Value, bool) {
	r.stateMu.RLock()
	_, registered := r.defs[key]
	r.stateMu.RUnlock()
	if !registered {
		return Value{}, false
	}

	v, ok := r.snapshot.Get()[key]
	return v, ok
}

// Watch returns a reactive view of one key's value: the current value is
// emitted immediately, then on every change, with consecutive duplicates
// suppressed. The caller owns the view's Close.
func (r *Registry) Watch(key string) *stream.Derived[any] {
	return stream.Map(r.snapshot, func(values map[string]Value) any {
		if v, ok := values[key]; ok {
			return v.Value
		}
		return nil
	}, stream.DeepEqual[any])
}

// Subscribe registers fn on the full value snapshot.
func (r *Registry) Subscribe(fn func(map[string]Value)) (cancel func()) {
	return r.snapshot.Subscribe(fn)
}

// Set validates and stores a user-sourced value for key.
func (r *Registry) Set(ctx context.Context, key string, value any) error {
	return r.SetWithSource(ctx, key, value, SourceUser)
}

// SetWithSource validates and stores a value for key. The pipeline runs
// custom validation, then the declared-type check, then numeric bounds.
// On success the new snapshot is published before persistence; a
// persistence failure is returned as a StorageError without rolling back
// the in-memory value.
func (r *Registry) SetWithSource(ctx context.Context, key string, value any, source Source) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.stateMu.RLock()
	def, ok := r.defs[key]
	r.stateMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnregisteredKey, key)
	}

	if err := r.checkValue(def, value); err != nil {
		if r.metrics != nil {
			r.metrics.RecordValidationFailure(failureReason(err))
		}
		return err
	}

	next := cloneValues(r.snapshot.Get())
	next[key] = Value{
		Key:          key,
		Value:        value,
		IsDefault:    valuesEqual(value, def.Default),
		LastModified: r.clock.Now(),
		Source:       source,
	}
	r.snapshot.Set(next)

	if r.metrics != nil {
		r.metrics.RecordSettingWrite(string(source))
	}
	r.logger.WithFields(logrus.Fields{
		"key":    key,
		"source": source,
	}).Debug("Setting updated")

	return r.persist(ctx, next)
}

// Reset restores key to its definition default.
func (r *Registry) Reset(ctx context.Context, key string) error {
	r.stateMu.RLock()
	def, ok := r.defs[key]
	r.stateMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnregisteredKey, key)
	}
	return r.SetWithSource(ctx, key, def.Default, SourceSystem)
}

// ResetAll resets every registered key sequentially, best-effort. A
// failure on one key does not stop or roll back the others; all failures
// are joined into the returned error.
func (r *Registry) ResetAll(ctx context.Context) error {
	var errs []error
	for _, key := range r.sortedKeys() {
		if err := r.Reset(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// ResetCategory resets every key belonging to the category, best-effort
// like ResetAll.
func (r *Registry) ResetCategory(ctx context.Context, categoryID string) error {
	var errs []error
	for _, key := range r.sortedKeys() {
		r.stateMu.RLock()
		def := r.defs[key]
		r.stateMu.RUnlock()
		if def.Category != categoryID {
			continue
		}
		if err := r.Reset(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// persist writes the full snapshot to the store as an ordered list of
// value records. Called with writeMu held so blob writes stay ordered.
func (r *Registry) persist(ctx context.Context, values map[string]Value) error {
	ordered := make([]Value, 0, len(values))
	for _, v := range values {
		ordered = append(ordered, v)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Key < ordered[j].Key })

	data, err := json.Marshal(ordered)
	if err != nil {
		return &StorageError{Op: "encode", Err: err}
	}

	if err := r.store.Set(ctx, r.storageName, data); err != nil {
		r.logger.WithError(err).Warn("Failed to persist settings")
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// checkValue runs the validation pipeline: custom rule, declared type,
// numeric bounds.
func (r *Registry) checkValue(def *Definition, value any) error {
	if def.Validate != nil {
		if msg := def.Validate(value); msg != "" {
			return &ValidationError{Key: def.Key, Message: msg}
		}
	}

	switch def.Type {
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return &TypeError{Key: def.Key, Expected: def.Type, Got: typeName(value)}
		}

	case TypeNumber, TypeRange:
		n, ok := toFloat(value)
		if !ok {
			return &TypeError{Key: def.Key, Expected: def.Type, Got: typeName(value)}
		}
		if def.Min != nil && n < *def.Min {
			return &RangeError{
				Key:     def.Key,
				Message: fmt.Sprintf("Value for %s must be at least %v", def.Key, *def.Min),
			}
		}
		if def.Max != nil && n > *def.Max {
			return &RangeError{
				Key:     def.Key,
				Message: fmt.Sprintf("Value for %s must be at most %v", def.Key, *def.Max),
			}
		}

	case TypeString:
		if _, ok := value.(string); !ok {
			return &TypeError{Key: def.Key, Expected: def.Type, Got: typeName(value)}
		}

	case TypeSelect:
		if _, ok := value.(string); !ok {
			return &TypeError{Key: def.Key, Expected: def.Type, Got: typeName(value)}
		}
		if len(def.Options) > 0 && !isOption(def.Options, value) {
			return &ValidationError{
				Key:     def.Key,
				Message: fmt.Sprintf("Value for %s must be one of its options", def.Key),
			}
		}

	case TypeColor:
		s, ok := value.(string)
		if !ok {
			return &TypeError{Key: def.Key, Expected: def.Type, Got: typeName(value)}
		}
		if !colorPattern.MatchString(s) {
			return &ValidationError{
				Key:     def.Key,
				Message: fmt.Sprintf("Value for %s must be a hex color such as #rrggbb", def.Key),
			}
		}

	default:
		return &TypeError{Key: def.Key, Expected: def.Type, Got: typeName(value)}
	}

	return nil
}

func (r *Registry) sortedKeys() []string {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	keys := make([]string, 0, len(r.defs))
	for key := range r.defs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func cloneValues(values map[string]Value) map[string]Value {
	next := make(map[string]Value, len(values)+1)
	for k, v := range values {
		next[k] = v
	}
	return next
}

func isOption(options []Option, value any) bool {
	for _, opt := range options {
		if valuesEqual(opt.Value, value) {
			return true
		}
	}
	return false
}

func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", value)
}

func failureReason(err error) string {
	switch err.(type) {
	case *ValidationError:
		return "validation"
	case *TypeError:
		return "type"
	case *RangeError:
		return "range"
	default:
		return "other"
	}
}
