package settings

import (
	"errors"
	"fmt"
	"math"
)

// Direction selects the capture (input) or playback (output) effect path.
type Direction string

const (
	Input  Direction = "input"
	Output Direction = "output"
)

// Directions lists both paths in a stable order.
var Directions = []Direction{Input, Output}

// ParseDirection validates s as a direction name.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Input, Output:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("settings: unknown direction %q", s)
	}
}

// Channel names one side of a stereo effect.
type Channel string

const (
	Left  Channel = "left"
	Right Channel = "right"
)

// Channels lists left then right.
var Channels = []Channel{Left, Right}

// MaxBands is the number of band slots every multi-band schema registers.
const MaxBands = 32

// Effect names with a registered schema.
const (
	Equalizer = "equalizer"
	Filter    = "filter"
	Limiter   = "limiter"
)

// Keys shared by every effect schema.
const (
	KeyInputGain  = "input-gain"
	KeyOutputGain = "output-gain"
)

// Equalizer scalar keys.
const (
	KeyMode          = "mode"
	KeyNumBands      = "num-bands"
	KeySplitChannels = "split-channels"
)

// Filter keys. The filter also uses KeyMode.
const (
	KeyFrequency = "frequency"
	KeyResonance = "resonance"
)

// Limiter keys.
const (
	KeyLookahead = "lookahead"
	KeyThreshold = "threshold"
	KeyRelease   = "release"
)

// Band field names, used both as store key suffixes and preset fields.
const (
	FieldType      = "type"
	FieldMode      = "mode"
	FieldSlope     = "slope"
	FieldSolo      = "solo"
	FieldMute      = "mute"
	FieldGain      = "gain"
	FieldFrequency = "frequency"
	FieldQ         = "q"
)

// BandFields lists the per-band fields in document order.
var BandFields = []string{FieldType, FieldMode, FieldSlope, FieldSolo, FieldMute, FieldGain, FieldFrequency, FieldQ}

var (
	EqualizerModes = []string{"IIR", "FIR", "FFT", "SPM"}
	BandTypes      = []string{"Off", "Bell", "Hi-pass", "Hi-shelf", "Lo-pass", "Lo-shelf", "Notch", "Resonance", "Allpass", "Bandpass"}
	BandModes      = []string{"RLC (BT)", "RLC (MT)", "BWC (BT)", "BWC (MT)", "LRX (BT)", "LRX (MT)", "APO (DR)"}
	BandSlopes     = []string{"x1", "x2", "x3", "x4"}
	FilterModes    = []string{
		"12dB/oct Lowpass", "24dB/oct Lowpass", "36dB/oct Lowpass",
		"12dB/oct Highpass", "24dB/oct Highpass", "36dB/oct Highpass",
		"6dB/oct Bandpass", "12dB/oct Bandpass", "18dB/oct Bandpass",
		"6dB/oct Bandreject", "12dB/oct Bandreject", "18dB/oct Bandreject",
	}
)

// EffectPath is the namespace of an effect's scalar keys,
// e.g. "output/equalizer/".
func EffectPath(dir Direction, effect string) string {
	return string(dir) + "/" + effect + "/"
}

// ChannelPath is the namespace of an effect's per-channel keys,
// e.g. "output/equalizer/leftchannel/".
func ChannelPath(dir Direction, effect string, ch Channel) string {
	return EffectPath(dir, effect) + string(ch) + "channel/"
}

// BandKey mangles a band index and field into a channel-relative key,
// e.g. BandKey(3, "gain") == "band3-gain".
func BandKey(n int, field string) string {
	return fmt.Sprintf("band%d-%s", n, field)
}

// Band is one frequency-selective unit of a multi-band effect.
type Band struct {
	Type      string
	Mode      string
	Slope     string
	Solo      bool
	Mute      bool
	Gain      float64
	Frequency float64
	Q         float64
}

// ErrBandIndex is returned for band indices outside [0, MaxBands).
var ErrBandIndex = errors.New("settings: band index out of range")

// ReadBand reads band n from a channel store.
func ReadBand(s Store, n int) (Band, error) {
	if n < 0 || n >= MaxBands {
		return Band{}, fmt.Errorf("%w: %d", ErrBandIndex, n)
	}

	var (
		b   Band
		err error
	)

	if b.Type, err = s.GetString(BandKey(n, FieldType)); err != nil {
		return Band{}, err
	}

	if b.Mode, err = s.GetString(BandKey(n, FieldMode)); err != nil {
		return Band{}, err
	}

	if b.Slope, err = s.GetString(BandKey(n, FieldSlope)); err != nil {
		return Band{}, err
	}

	if b.Solo, err = s.GetBool(BandKey(n, FieldSolo)); err != nil {
		return Band{}, err
	}

	if b.Mute, err = s.GetBool(BandKey(n, FieldMute)); err != nil {
		return Band{}, err
	}

	if b.Gain, err = s.GetDouble(BandKey(n, FieldGain)); err != nil {
		return Band{}, err
	}

	if b.Frequency, err = s.GetDouble(BandKey(n, FieldFrequency)); err != nil {
		return Band{}, err
	}

	if b.Q, err = s.GetDouble(BandKey(n, FieldQ)); err != nil {
		return Band{}, err
	}

	return b, nil
}

// WriteBand writes every field of band n. Fields are applied in
// BandFields order; a failure leaves the earlier fields written.
func WriteBand(s Store, n int, b Band) error {
	if n < 0 || n >= MaxBands {
		return fmt.Errorf("%w: %d", ErrBandIndex, n)
	}

	steps := []func() error{
		func() error { return s.SetString(BandKey(n, FieldType), b.Type) },
		func() error { return s.SetString(BandKey(n, FieldMode), b.Mode) },
		func() error { return s.SetString(BandKey(n, FieldSlope), b.Slope) },
		func() error { return s.SetBool(BandKey(n, FieldSolo), b.Solo) },
		func() error { return s.SetBool(BandKey(n, FieldMute), b.Mute) },
		func() error { return s.SetDouble(BandKey(n, FieldGain), b.Gain) },
		func() error { return s.SetDouble(BandKey(n, FieldFrequency), b.Frequency) },
		func() error { return s.SetDouble(BandKey(n, FieldQ), b.Q) },
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	return nil
}

// EffectSchema is the key set of one effect: scalar keys under EffectPath
// and, for multi-channel effects, per-channel keys under ChannelPath.
type EffectSchema struct {
	Keys        []Key
	ChannelKeys []Key
}

// ErrUnknownEffect is returned by RegisterEffect for effects without a schema.
var ErrUnknownEffect = errors.New("settings: unknown effect")

var schemas = map[string]EffectSchema{
	Equalizer: {
		Keys: append(gainKeys(),
			Key{Name: KeyMode, Kind: KindString, Choices: EqualizerModes},
			Key{Name: KeyNumBands, Kind: KindInt, Default: MaxBands, Min: 0, Max: MaxBands},
			Key{Name: KeySplitChannels, Kind: KindBool},
		),
		ChannelKeys: bandKeys(),
	},
	Filter: {
		Keys: append(gainKeys(),
			Key{Name: KeyMode, Kind: KindString, Choices: FilterModes},
			Key{Name: KeyFrequency, Kind: KindDouble, Default: 2000.0, Min: 10, Max: 20000},
			Key{Name: KeyResonance, Kind: KindDouble, Default: -3.0103, Min: -20, Max: 30},
		),
	},
	Limiter: {
		Keys: append(gainKeys(),
			Key{Name: KeyLookahead, Kind: KindDouble, Default: 5.0, Min: 0, Max: 20},
			Key{Name: KeyThreshold, Kind: KindDouble, Default: -1.0, Min: -60, Max: 0},
			Key{Name: KeyRelease, Kind: KindDouble, Default: 50.0, Min: 1, Max: 1000},
		),
	},
}

func gainKeys() []Key {
	return []Key{
		{Name: KeyInputGain, Kind: KindDouble, Default: 0.0, Min: -36, Max: 36},
		{Name: KeyOutputGain, Kind: KindDouble, Default: 0.0, Min: -36, Max: 36},
	}
}

func bandKeys() []Key {
	keys := make([]Key, 0, MaxBands*len(BandFields))

	for n := range MaxBands {
		// log-spaced 20 Hz .. 20 kHz
		freq := 20 * math.Pow(1000, float64(n)/float64(MaxBands-1))

		keys = append(keys,
			Key{Name: BandKey(n, FieldType), Kind: KindString, Default: "Bell", Choices: BandTypes},
			Key{Name: BandKey(n, FieldMode), Kind: KindString, Choices: BandModes},
			Key{Name: BandKey(n, FieldSlope), Kind: KindString, Choices: BandSlopes},
			Key{Name: BandKey(n, FieldSolo), Kind: KindBool},
			Key{Name: BandKey(n, FieldMute), Kind: KindBool},
			Key{Name: BandKey(n, FieldGain), Kind: KindDouble, Default: 0.0, Min: -36, Max: 36},
			Key{Name: BandKey(n, FieldFrequency), Kind: KindDouble, Default: math.Round(freq*100) / 100, Min: 10, Max: 24000},
			Key{Name: BandKey(n, FieldQ), Kind: KindDouble, Default: 4.36, Min: 0.1, Max: 100},
		)
	}

	return keys
}

// Schema returns the schema of effect.
func Schema(effect string) (EffectSchema, bool) {
	s, ok := schemas[effect]
	return s, ok
}

// RegisterEffect registers effect's schema for dir on b.
func RegisterEffect(b *Backend, dir Direction, effect string) error {
	s, ok := schemas[effect]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEffect, effect)
	}

	if err := b.Register(EffectPath(dir, effect), s.Keys...); err != nil {
		return err
	}

	if len(s.ChannelKeys) == 0 {
		return nil
	}

	for _, ch := range Channels {
		if err := b.Register(ChannelPath(dir, effect, ch), s.ChannelKeys...); err != nil {
			return err
		}
	}

	return nil
}
