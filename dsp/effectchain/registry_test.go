package effectchain

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/cwbudde/algo-fxhost/dsp/plugin/builtin"
	"github.com/cwbudde/algo-fxhost/internal/testutil"
	"github.com/cwbudde/algo-fxhost/settings"
)

func dummyFactory(_ Env) (*Stage, error) {
	return newStubStage("dummy", newStubLoader(nil)), nil
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()

	t.Run("registers and looks up factory", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()

		err := r.Register("chorus", dummyFactory)
		if err != nil {
			t.Fatalf("Register returned unexpected error: %v", err)
		}

		if r.Lookup("chorus") == nil {
			t.Fatal("Lookup returned nil for registered type")
		}
	})

	t.Run("rejects empty effect name", func(t *testing.T) {
		t.Parallel()

		if err := NewRegistry().Register("", dummyFactory); err == nil {
			t.Fatal("expected error for empty effect name")
		}
	})

	t.Run("rejects nil factory", func(t *testing.T) {
		t.Parallel()

		if err := NewRegistry().Register("chorus", nil); err == nil {
			t.Fatal("expected error for nil factory")
		}
	})

	t.Run("rejects duplicate registration", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		_ = r.Register("chorus", dummyFactory)

		err := r.Register("chorus", dummyFactory)
		if !errors.Is(err, ErrEffectRegistered) {
			t.Fatalf("expected duplicate error, got %v", err)
		}
	})

	t.Run("MustRegister panics on duplicate", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		r.MustRegister("chorus", dummyFactory)

		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()

		r.MustRegister("chorus", dummyFactory)
	})
}

func TestRegistryBuildUnknown(t *testing.T) {
	t.Parallel()

	env := Env{Direction: settings.Output, Backend: settings.NewBackend()}

	if _, err := DefaultRegistry().Build("reverb", env); !errors.Is(err, ErrUnknownEffect) {
		t.Fatalf("Build error = %v, want ErrUnknownEffect", err)
	}
}

func TestDefaultRegistryNames(t *testing.T) {
	t.Parallel()

	want := []string{settings.Equalizer, settings.Filter, settings.Limiter}
	if got := DefaultRegistry().Names(); !slices.Equal(got, want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
}

func builtinEnv(dir settings.Direction) Env {
	return Env{Direction: dir, Backend: settings.NewBackend(), Loader: builtin.NewLoader()}
}

func TestDefaultEqualizerFollowsStore(t *testing.T) {
	t.Parallel()

	env := builtinEnv(settings.Output)

	c, err := DefaultRegistry().BuildChain(env, []string{settings.Equalizer})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Setup(48000, 4800); err != nil {
		t.Fatal(err)
	}

	main := env.Backend.Open(settings.EffectPath(settings.Output, settings.Equalizer))
	defer main.Close()

	left := env.Backend.Open(settings.ChannelPath(settings.Output, settings.Equalizer, settings.Left))
	defer left.Close()

	if got := main.Refs(); got != 2 {
		t.Fatalf("stage and test should share one view, refs = %d", got)
	}

	// no bands: exact passthrough through the real engine
	if err := main.SetInt(settings.KeyNumBands, 0); err != nil {
		t.Fatal(err)
	}

	in := testutil.Sine(1000, 48000, 0.1, 4800)
	outL, outR := make([]float32, 4800), make([]float32, 4800)
	c.Process(in, in, outL, outR)
	testutil.RequireBlocksEqual(t, outL, in)

	// one +12 dB bell at 1 kHz
	if err := main.SetInt(settings.KeyNumBands, 1); err != nil {
		t.Fatal(err)
	}

	band := settings.Band{Type: "Bell", Mode: "RLC (BT)", Slope: "x1", Gain: 12, Frequency: 1000, Q: 1}
	if err := settings.WriteBand(left, 0, band); err != nil {
		t.Fatal(err)
	}

	for range 2 {
		c.Process(in, in, outL, outR)
	}

	want := math.Pow(10, 12.0/20)
	if ratio := testutil.RMS(outR, 0) / testutil.RMS(in, 0); math.Abs(ratio-want)/want > 0.02 {
		t.Fatalf("right channel (unsplit) ratio = %v, want %v", ratio, want)
	}

	// output gain through the stage
	if err := main.SetDouble(settings.KeyOutputGain, -12); err != nil {
		t.Fatal(err)
	}

	c.Process(in, in, outL, outR)

	if ratio := testutil.RMS(outL, 0) / testutil.RMS(in, 0); math.Abs(ratio-1) > 0.02 {
		t.Fatalf("ratio with -12 dB output gain = %v, want 1", ratio)
	}
}

func TestDefaultLimiterLatency(t *testing.T) {
	t.Parallel()

	env := builtinEnv(settings.Input)

	c, err := DefaultRegistry().BuildChain(env, []string{settings.Filter, settings.Limiter})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Setup(48000, 256); err != nil {
		t.Fatal(err)
	}

	if got := c.LatencySeconds(); math.Abs(got-0.005) > 1e-9 {
		t.Fatalf("latency = %v, want 0.005", got)
	}

	v := env.Backend.Open(settings.EffectPath(settings.Input, settings.Limiter))
	defer v.Close()

	if err := v.SetDouble(settings.KeyLookahead, 10); err != nil {
		t.Fatal(err)
	}

	// lookahead applies at the next block boundary
	in := make([]float32, 256)
	c.Process(in, in, in, in)

	if got := c.LatencySeconds(); math.Abs(got-0.010) > 1e-9 {
		t.Fatalf("latency after change = %v, want 0.010", got)
	}
}

func TestDefaultStageWithoutEngine(t *testing.T) {
	t.Parallel()

	loader := builtin.NewLoader()
	loader.Unregister(builtin.URIFilter)

	env := Env{Direction: settings.Output, Backend: settings.NewBackend(), Loader: loader}

	c, err := DefaultRegistry().BuildChain(env, []string{settings.Filter})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Setup(48000, 128); err != nil {
		t.Fatalf("setup with missing engine: %v", err)
	}

	in := testutil.Noise(9, 1, 128)
	out := make([]float32, 128)
	outR := make([]float32, 128)
	c.Process(in, in, out, outR)

	testutil.RequireBlocksEqual(t, out, in)
}
