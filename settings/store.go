// Package settings implements the typed parameter store the effect stages
// and preset codecs read from and write to.
//
// Keys live in one flat Backend addressed by full slash-separated paths such
// as "output/equalizer/num-bands". A View scopes the Backend to a namespace
// prefix; views are shared and reference counted, so every stage addressing
// the same namespace holds the same View.
package settings

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUnknownKey is returned for keys that were never registered.
	ErrUnknownKey = errors.New("settings: unknown key")
	// ErrTypeMismatch is returned when a key is accessed as the wrong kind.
	ErrTypeMismatch = errors.New("settings: type mismatch")
	// ErrInvalidValue is returned for out-of-range numbers and unknown enum labels.
	ErrInvalidValue = errors.New("settings: invalid value")
)

// Kind is the value type of a key.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindDouble
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Key describes one schema entry. Min and Max bound numeric kinds when
// Min < Max. Choices turns a string key into an enum.
type Key struct {
	Name     string
	Kind     Kind
	Default  any
	Min, Max float64
	Choices  []string
}

// Store is the typed get/set/observe contract consumed by stages and codecs.
type Store interface {
	GetBool(key string) (bool, error)
	GetInt(key string) (int, error)
	GetDouble(key string) (float64, error)
	GetString(key string) (string, error)
	// GetEnum returns the index of the current label in the key's choices.
	GetEnum(key string) (int, error)

	SetBool(key string, v bool) error
	SetInt(key string, v int) error
	SetDouble(key string, v float64) error
	SetString(key string, v string) error

	// OnChange registers fn to run after every successful set of key.
	// The returned func removes the observer.
	OnChange(key string, fn func()) (cancel func(), err error)
}

type entry struct {
	key       Key
	value     any
	observers map[int]func()
}

// Backend owns every registered key.
type Backend struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextID  int

	viewsMu sync.Mutex
	views   map[string]*View
}

// NewBackend returns an empty backend.
func NewBackend() *Backend {
	return &Backend{
		entries: make(map[string]*entry),
		views:   make(map[string]*View),
	}
}

// Register adds keys under namespace. Registering an existing key again is
// allowed when the kind matches; the current value is kept.
func (b *Backend) Register(namespace string, keys ...Key) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, k := range keys {
		if k.Name == "" {
			return errors.New("settings: empty key name")
		}

		full := namespace + k.Name
		if e, ok := b.entries[full]; ok {
			if e.key.Kind != k.Kind {
				return fmt.Errorf("%w: %s registered as %s, not %s", ErrTypeMismatch, full, e.key.Kind, k.Kind)
			}

			continue
		}

		def, err := normalize(k, k.Default)
		if err != nil {
			return fmt.Errorf("settings: default for %s: %w", full, err)
		}

		b.entries[full] = &entry{key: k, value: def, observers: map[int]func(){}}
	}

	return nil
}

// Has reports whether key is registered.
func (b *Backend) Has(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.entries[key]

	return ok
}

// Keys returns all registered keys with the given prefix, sorted.
func (b *Backend) Keys(prefix string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.entries))
	for k := range b.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}

	sort.Strings(out)

	return out
}

// Describe returns the schema entry of key.
func (b *Backend) Describe(key string) (Key, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[key]
	if !ok {
		return Key{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	return e.key, nil
}

// Value returns the current value of key as bool, int, float64 or string.
func (b *Backend) Value(key string) (any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	return e.value, nil
}

// SetValue assigns v to key after coercing it to the key's kind. Whole
// float64 values are accepted for int keys so decoded JSON can be passed in
// directly.
func (b *Backend) SetValue(key string, v any) error {
	b.mu.Lock()

	e, ok := b.entries[key]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	norm, err := normalize(e.key, v)
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("%s: %w", key, err)
	}

	changed := e.value != norm
	e.value = norm

	var fns []func()
	if changed {
		fns = make([]func(), 0, len(e.observers))
		for _, fn := range e.observers {
			fns = append(fns, fn)
		}
	}

	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}

	return nil
}

func (b *Backend) get(key string, kind Kind) (any, Key, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[key]
	if !ok {
		return nil, Key{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	if e.key.Kind != kind {
		return nil, Key{}, fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, key, e.key.Kind, kind)
	}

	return e.value, e.key, nil
}

func (b *Backend) set(key string, kind Kind, v any) error {
	b.mu.RLock()
	e, ok := b.entries[key]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	if e.key.Kind != kind {
		return fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, key, e.key.Kind, kind)
	}

	return b.SetValue(key, v)
}

func (b *Backend) observe(key string, fn func()) (func(), error) {
	if fn == nil {
		return nil, errors.New("settings: nil observer")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	id := b.nextID
	b.nextID++
	e.observers[id] = fn

	return func() {
		b.mu.Lock()
		delete(e.observers, id)
		b.mu.Unlock()
	}, nil
}

func normalize(k Key, v any) (any, error) {
	switch k.Kind {
	case KindBool:
		if v == nil {
			return false, nil
		}

		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: want bool, got %T", ErrTypeMismatch, v)
		}

		return b, nil
	case KindInt:
		var n int

		switch t := v.(type) {
		case nil:
		case int:
			n = t
		case int64:
			n = int(t)
		case float64:
			if t != math.Trunc(t) {
				return nil, fmt.Errorf("%w: %v is not an integer", ErrTypeMismatch, t)
			}

			n = int(t)
		default:
			return nil, fmt.Errorf("%w: want int, got %T", ErrTypeMismatch, v)
		}

		if err := checkRange(k, float64(n)); err != nil {
			return nil, err
		}

		return n, nil
	case KindDouble:
		var f float64

		switch t := v.(type) {
		case nil:
		case float64:
			f = t
		case float32:
			f = float64(t)
		case int:
			f = float64(t)
		default:
			return nil, fmt.Errorf("%w: want double, got %T", ErrTypeMismatch, v)
		}

		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite %v", ErrInvalidValue, f)
		}

		if err := checkRange(k, f); err != nil {
			return nil, err
		}

		return f, nil
	case KindString:
		s := ""

		if v != nil {
			str, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: want string, got %T", ErrTypeMismatch, v)
			}

			s = str
		}

		if len(k.Choices) > 0 {
			if s == "" {
				s = k.Choices[0]
			}

			if !slices.Contains(k.Choices, s) {
				return nil, fmt.Errorf("%w: %q not in %v", ErrInvalidValue, s, k.Choices)
			}
		}

		return s, nil
	default:
		return nil, fmt.Errorf("%w: unsupported kind %v", ErrTypeMismatch, k.Kind)
	}
}

func checkRange(k Key, f float64) error {
	if k.Min < k.Max && (f < k.Min || f > k.Max) {
		return fmt.Errorf("%w: %v outside [%v, %v]", ErrInvalidValue, f, k.Min, k.Max)
	}

	return nil
}
