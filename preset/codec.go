package preset

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-fxhost/settings"
)

// Codec maps the store keys of one effect to its document subtree
// "<direction>.<effect>".
type Codec interface {
	Name() string
	// Save writes the effect's current values into doc. It never writes to
	// the store.
	Save(doc *Document, dir settings.Direction, b *settings.Backend) error
	// Load applies the effect's subtree of doc to the store.
	Load(doc *Document, dir settings.Direction, b *settings.Backend) error
}

// DefaultCodecs returns a codec for every built-in effect.
func DefaultCodecs() []Codec {
	return []Codec{Equalizer{}, Filter(), Limiter()}
}

// field is one scalar of an effect.
type field struct {
	key  string
	kind settings.Kind
}

func docPath(dir settings.Direction, effect string, rest ...string) string {
	p := string(dir) + "." + effect
	for _, r := range rest {
		p += "." + r
	}

	return p
}

// saveField copies key from s into doc at path.
func saveField(doc *Document, path string, s settings.Store, f field) error {
	var (
		v   any
		err error
	)

	switch f.kind {
	case settings.KindBool:
		v, err = s.GetBool(f.key)
	case settings.KindInt:
		v, err = s.GetInt(f.key)
	case settings.KindDouble:
		v, err = s.GetDouble(f.key)
	case settings.KindString:
		v, err = s.GetString(f.key)
	default:
		err = fmt.Errorf("%w: unsupported kind %v", ErrTypeMismatch, f.kind)
	}

	if err != nil {
		return fieldErr(path, err)
	}

	doc.Put(path, v)

	return nil
}

// loadField copies the value at path into key of s.
func loadField(doc *Document, path string, s settings.Store, f field) error {
	var err error

	switch f.kind {
	case settings.KindBool:
		var v bool
		if v, err = doc.Bool(path); err == nil {
			err = s.SetBool(f.key, v)
		}
	case settings.KindInt:
		var v int
		if v, err = doc.Int(path); err == nil {
			err = s.SetInt(f.key, v)
		}
	case settings.KindDouble:
		var v float64
		if v, err = doc.Double(path); err == nil {
			err = s.SetDouble(f.key, v)
		}
	case settings.KindString:
		var v string
		if v, err = doc.String(path); err == nil {
			err = s.SetString(f.key, v)
		}
	default:
		err = fmt.Errorf("%w: unsupported kind %v", ErrTypeMismatch, f.kind)
	}

	if err == nil {
		return nil
	}

	var fe *FieldError
	if errors.As(err, &fe) {
		return err
	}

	return fieldErr(path, err)
}

// scalarCodec handles effects made only of scalar keys.
type scalarCodec struct {
	effect string
	fields []field
}

// Filter returns the codec of the filter effect.
func Filter() Codec {
	return scalarCodec{
		effect: settings.Filter,
		fields: []field{
			{settings.KeyInputGain, settings.KindDouble},
			{settings.KeyOutputGain, settings.KindDouble},
			{settings.KeyMode, settings.KindString},
			{settings.KeyFrequency, settings.KindDouble},
			{settings.KeyResonance, settings.KindDouble},
		},
	}
}

// Limiter returns the codec of the limiter effect.
func Limiter() Codec {
	return scalarCodec{
		effect: settings.Limiter,
		fields: []field{
			{settings.KeyInputGain, settings.KindDouble},
			{settings.KeyOutputGain, settings.KindDouble},
			{settings.KeyLookahead, settings.KindDouble},
			{settings.KeyThreshold, settings.KindDouble},
			{settings.KeyRelease, settings.KindDouble},
		},
	}
}

func (c scalarCodec) Name() string { return c.effect }

func (c scalarCodec) Save(doc *Document, dir settings.Direction, b *settings.Backend) error {
	v := b.Open(settings.EffectPath(dir, c.effect))
	defer v.Close()

	for _, f := range c.fields {
		if err := saveField(doc, docPath(dir, c.effect, f.key), v, f); err != nil {
			return err
		}
	}

	return nil
}

// Load applies every field it can and reports all failures together.
func (c scalarCodec) Load(doc *Document, dir settings.Direction, b *settings.Backend) error {
	if err := settings.RegisterEffect(b, dir, c.effect); err != nil {
		return err
	}

	v := b.Open(settings.EffectPath(dir, c.effect))
	defer v.Close()

	var errs []error

	for _, f := range c.fields {
		if err := loadField(doc, docPath(dir, c.effect, f.key), v, f); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
