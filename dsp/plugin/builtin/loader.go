// Package builtin provides the DSP engines shipped with the host: a
// multi-band equalizer, a resonant filter and a lookahead limiter. They are
// reached only through plugin.Loader, the same way an external engine
// would be.
package builtin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cwbudde/algo-fxhost/dsp/plugin"
)

// Engine identifiers.
const (
	URIEqualizer = "urn:algo-fxhost:equalizer"
	URIFilter    = "urn:algo-fxhost:filter"
	URILimiter   = "urn:algo-fxhost:limiter"
)

// Factory creates an engine instance for sampleRate.
type Factory func(sampleRate float64) (plugin.Instance, error)

// Loader is a plugin.Loader over in-process factories.
type Loader struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewLoader returns a loader with every built-in engine registered.
func NewLoader() *Loader {
	l := &Loader{factories: make(map[string]Factory)}
	l.Register(URIEqualizer, NewEqualizer)
	l.Register(URIFilter, NewFilter)
	l.Register(URILimiter, NewLimiter)

	return l
}

// Register adds or replaces the factory for uri.
func (l *Loader) Register(uri string, f Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.factories[uri] = f
}

// Unregister removes uri. Hosts created afterwards report it as missing.
func (l *Loader) Unregister(uri string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.factories, uri)
}

// URIs lists the registered engines, sorted.
func (l *Loader) URIs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.factories))
	for u := range l.factories {
		out = append(out, u)
	}

	sort.Strings(out)

	return out
}

func (l *Loader) Has(uri string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.factories[uri]

	return ok
}

func (l *Loader) Instantiate(uri string, sampleRate float64) (plugin.Instance, error) {
	l.mu.RLock()
	f, ok := l.factories[uri]
	l.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", plugin.ErrUnavailable, uri)
	}

	return f(sampleRate)
}

var _ plugin.Loader = (*Loader)(nil)

func unknownPort(port string) error {
	return fmt.Errorf("%w: %s", plugin.ErrUnknownPort, port)
}

func labelIndex(v float64, labels []string) int {
	i := int(v)
	if i < 0 || i >= len(labels) {
		return 0
	}

	return i
}
