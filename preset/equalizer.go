package preset

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-fxhost/settings"
)

// Equalizer is the codec of the multi-band, multi-channel equalizer.
//
// Document layout under "<direction>.equalizer":
//
//	mode, num-bands, input-gain, output-gain, split-channels
//	left.band<N>.{type,mode,slope,solo,mute,gain,frequency,q}
//	right.band<N>.{...}
type Equalizer struct{}

// saved in this order
var equalizerScalars = []field{
	{settings.KeyMode, settings.KindString},
	{settings.KeyNumBands, settings.KindInt},
	{settings.KeyInputGain, settings.KindDouble},
	{settings.KeyOutputGain, settings.KindDouble},
	{settings.KeySplitChannels, settings.KindBool},
}

// loaded in this order
var equalizerLoadOrder = []field{
	{settings.KeyInputGain, settings.KindDouble},
	{settings.KeyOutputGain, settings.KindDouble},
	{settings.KeyMode, settings.KindString},
	{settings.KeyNumBands, settings.KindInt},
	{settings.KeySplitChannels, settings.KindBool},
}

func (Equalizer) Name() string { return settings.Equalizer }

// Save reads num-bands once and writes that many bands per channel.
func (Equalizer) Save(doc *Document, dir settings.Direction, b *settings.Backend) error {
	main := b.Open(settings.EffectPath(dir, settings.Equalizer))
	defer main.Close()

	var numBands int

	for _, f := range equalizerScalars {
		path := docPath(dir, settings.Equalizer, f.key)

		if f.key != settings.KeyNumBands {
			if err := saveField(doc, path, main, f); err != nil {
				return err
			}

			continue
		}

		n, err := main.GetInt(settings.KeyNumBands)
		if err != nil {
			return fieldErr(path, err)
		}

		if n < 0 || n > settings.MaxBands {
			return &FieldError{Path: path, Err: fmt.Errorf("%w: %d", ErrBandIndexOutOfRange, n)}
		}

		doc.Put(path, n)
		numBands = n
	}

	for _, ch := range settings.Channels {
		v := b.Open(settings.ChannelPath(dir, settings.Equalizer, ch))

		for n := range numBands {
			band, err := settings.ReadBand(v, n)
			if err != nil {
				v.Close()
				return fieldErr(bandPath(dir, ch, n, ""), err)
			}

			putBand(doc, dir, ch, n, band)
		}

		v.Close()
	}

	return nil
}

// Load applies the scalars, re-reads num-bands from the store and then
// applies that many bands per channel.
//
// Scalar failures are reported together before any band is touched. A
// failing band stops its channel; earlier bands of that channel stay
// applied and the other channel is still loaded.
func (Equalizer) Load(doc *Document, dir settings.Direction, b *settings.Backend) error {
	if err := settings.RegisterEffect(b, dir, settings.Equalizer); err != nil {
		return err
	}

	main := b.Open(settings.EffectPath(dir, settings.Equalizer))
	defer main.Close()

	var errs []error

	for _, f := range equalizerLoadOrder {
		path := docPath(dir, settings.Equalizer, f.key)

		if f.key == settings.KeyNumBands {
			if err := checkBandCount(doc, path); err != nil {
				errs = append(errs, err)
				continue
			}
		}

		if err := loadField(doc, path, main, f); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	numBands, err := main.GetInt(settings.KeyNumBands)
	if err != nil {
		return fieldErr(docPath(dir, settings.Equalizer, settings.KeyNumBands), err)
	}

	for _, ch := range settings.Channels {
		if err := loadChannel(doc, dir, b, ch, numBands); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// checkBandCount reports a document band count the schema cannot hold.
func checkBandCount(doc *Document, path string) error {
	n, err := doc.Int(path)
	if err != nil {
		return err
	}

	if n < 0 || n > settings.MaxBands {
		return &FieldError{Path: path, Err: fmt.Errorf("%w: %d", ErrBandIndexOutOfRange, n)}
	}

	return nil
}

func loadChannel(doc *Document, dir settings.Direction, b *settings.Backend, ch settings.Channel, numBands int) error {
	if numBands < 0 || numBands > settings.MaxBands {
		return &FieldError{
			Path: docPath(dir, settings.Equalizer, string(ch)),
			Err:  fmt.Errorf("%w: %d bands", ErrBandIndexOutOfRange, numBands),
		}
	}

	v := b.Open(settings.ChannelPath(dir, settings.Equalizer, ch))
	defer v.Close()

	for n := range numBands {
		band, err := decodeBand(doc, dir, ch, n)
		if err != nil {
			return err
		}

		for _, f := range bandFields {
			if err := f.set(v, n, band); err != nil {
				return fieldErr(bandPath(dir, ch, n, f.name), err)
			}
		}
	}

	return nil
}

func bandPath(dir settings.Direction, ch settings.Channel, n int, name string) string {
	p := docPath(dir, settings.Equalizer, string(ch), fmt.Sprintf("band%d", n))
	if name != "" {
		p += "." + name
	}

	return p
}

func putBand(doc *Document, dir settings.Direction, ch settings.Channel, n int, band settings.Band) {
	for _, f := range bandFields {
		doc.Put(bandPath(dir, ch, n, f.name), f.get(band))
	}
}

// decodeBand reads every field of band n before anything is written, so a
// malformed band is never half applied.
func decodeBand(doc *Document, dir settings.Direction, ch settings.Channel, n int) (settings.Band, error) {
	var (
		band settings.Band
		err  error
	)

	p := func(name string) string { return bandPath(dir, ch, n, name) }

	if band.Type, err = doc.String(p(settings.FieldType)); err != nil {
		return band, err
	}

	if band.Mode, err = doc.String(p(settings.FieldMode)); err != nil {
		return band, err
	}

	if band.Slope, err = doc.String(p(settings.FieldSlope)); err != nil {
		return band, err
	}

	if band.Solo, err = doc.Bool(p(settings.FieldSolo)); err != nil {
		return band, err
	}

	if band.Mute, err = doc.Bool(p(settings.FieldMute)); err != nil {
		return band, err
	}

	if band.Gain, err = doc.Double(p(settings.FieldGain)); err != nil {
		return band, err
	}

	if band.Frequency, err = doc.Double(p(settings.FieldFrequency)); err != nil {
		return band, err
	}

	if band.Q, err = doc.Double(p(settings.FieldQ)); err != nil {
		return band, err
	}

	return band, nil
}

type bandField struct {
	name string
	get  func(settings.Band) any
	set  func(s settings.Store, n int, b settings.Band) error
}

var bandFields = []bandField{
	{
		name: settings.FieldType,
		get:  func(b settings.Band) any { return b.Type },
		set: func(s settings.Store, n int, b settings.Band) error {
			return s.SetString(settings.BandKey(n, settings.FieldType), b.Type)
		},
	},
	{
		name: settings.FieldMode,
		get:  func(b settings.Band) any { return b.Mode },
		set: func(s settings.Store, n int, b settings.Band) error {
			return s.SetString(settings.BandKey(n, settings.FieldMode), b.Mode)
		},
	},
	{
		name: settings.FieldSlope,
		get:  func(b settings.Band) any { return b.Slope },
		set: func(s settings.Store, n int, b settings.Band) error {
			return s.SetString(settings.BandKey(n, settings.FieldSlope), b.Slope)
		},
	},
	{
		name: settings.FieldSolo,
		get:  func(b settings.Band) any { return b.Solo },
		set: func(s settings.Store, n int, b settings.Band) error {
			return s.SetBool(settings.BandKey(n, settings.FieldSolo), b.Solo)
		},
	},
	{
		name: settings.FieldMute,
		get:  func(b settings.Band) any { return b.Mute },
		set: func(s settings.Store, n int, b settings.Band) error {
			return s.SetBool(settings.BandKey(n, settings.FieldMute), b.Mute)
		},
	},
	{
		name: settings.FieldGain,
		get:  func(b settings.Band) any { return b.Gain },
		set: func(s settings.Store, n int, b settings.Band) error {
			return s.SetDouble(settings.BandKey(n, settings.FieldGain), b.Gain)
		},
	},
	{
		name: settings.FieldFrequency,
		get:  func(b settings.Band) any { return b.Frequency },
		set: func(s settings.Store, n int, b settings.Band) error {
			return s.SetDouble(settings.BandKey(n, settings.FieldFrequency), b.Frequency)
		},
	},
	{
		name: settings.FieldQ,
		get:  func(b settings.Band) any { return b.Q },
		set: func(s settings.Store, n int, b settings.Band) error {
			return s.SetDouble(settings.BandKey(n, settings.FieldQ), b.Q)
		},
	},
}
