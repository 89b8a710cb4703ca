package plugin

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-fxhost/dsp/core"
	"github.com/cwbudde/algo-fxhost/settings"
)

// binding is the slot between a settings key and a control port. The
// observer writes the transformed value; Run consumes it once per block.
type binding struct {
	port   string
	bits   atomic.Uint64
	dirty  atomic.Bool
	read   func() (float64, error)
	cancel func()
}

func (b *binding) value() float64 { return math.Float64frombits(b.bits.Load()) }

func (b *binding) store(v float64) {
	b.bits.Store(math.Float64bits(v))
	b.dirty.Store(true)
}

// BindDouble links a double key to port unchanged.
func (h *Host) BindDouble(port string, s settings.Store, key string) error {
	return h.bind(port, s, key, func() (float64, error) { return s.GetDouble(key) })
}

// BindDoubleDB links a double key holding decibels to a port expecting a
// linear factor.
func (h *Host) BindDoubleDB(port string, s settings.Store, key string) error {
	return h.bind(port, s, key, func() (float64, error) {
		db, err := s.GetDouble(key)
		if err != nil {
			return 0, err
		}

		return core.DBToLinear(db), nil
	})
}

// BindEnum links an enumerated string key to port. The port receives the
// index of the label in the key's choices.
func (h *Host) BindEnum(port string, s settings.Store, key string) error {
	return h.bind(port, s, key, func() (float64, error) {
		idx, err := s.GetEnum(key)
		if err != nil {
			return 0, err
		}

		return float64(idx), nil
	})
}

// BindBool links a boolean key to port as 0 or 1.
func (h *Host) BindBool(port string, s settings.Store, key string) error {
	return h.bind(port, s, key, func() (float64, error) {
		v, err := s.GetBool(key)
		if err != nil || !v {
			return 0, err
		}

		return 1, nil
	})
}

// BindInt links an integer key to port.
func (h *Host) BindInt(port string, s settings.Store, key string) error {
	return h.bind(port, s, key, func() (float64, error) {
		v, err := s.GetInt(key)
		return float64(v), err
	})
}

// BindFunc links key to port through an arbitrary transform of the store.
func (h *Host) BindFunc(port string, s settings.Store, key string, read func() (float64, error)) error {
	return h.bind(port, s, key, read)
}

func (h *Host) bind(port string, s settings.Store, key string, read func() (float64, error)) error {
	if port == "" {
		return fmt.Errorf("plugin: empty port name for key %s", key)
	}

	v, err := read()
	if err != nil {
		return fmt.Errorf("plugin: bind %s to %s: %w", port, key, err)
	}

	b := &binding{port: port, read: read}
	b.store(v)

	cancel, err := s.OnChange(key, func() {
		if v, err := b.read(); err == nil {
			b.store(v)
		}
	})
	if err != nil {
		return fmt.Errorf("plugin: bind %s to %s: %w", port, key, err)
	}

	b.cancel = cancel

	h.mu.Lock()
	defer h.mu.Unlock()

	old := *h.bindings.Load()
	next := make([]*binding, 0, len(old)+1)

	for _, ob := range old {
		if ob.port == port {
			ob.cancel()
			continue
		}

		next = append(next, ob)
	}

	next = append(next, b)
	h.bindings.Store(&next)

	return nil
}
