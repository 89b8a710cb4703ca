package effectchain

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-fxhost/dsp/core"
	"github.com/cwbudde/algo-fxhost/internal/testutil"
	"github.com/cwbudde/algo-fxhost/settings"
)

const testBlock = 64

func setupStage(t *testing.T, s *Stage, rate float64) {
	t.Helper()

	if err := s.Setup(rate, testBlock); err != nil {
		t.Fatalf("Setup: %v", err)
	}
}

func TestStageUnityGainSkipsMultiply(t *testing.T) {
	t.Parallel()

	loader := newStubLoader(map[string]affineParams{"urn:test:fx": {mul: 0.5}})
	sentinel := &countingScaler{}
	s := newStubStage("fx", loader, WithScaler(sentinel.scale))
	setupStage(t, s, 48000)

	in := testutil.Noise(7, 0.9, testBlock)
	inL, inR := testutil.Clone(in), testutil.Clone(in)
	outL, outR := make([]float32, testBlock), make([]float32, testBlock)

	s.Process(inL, inR, outL, outR)

	if sentinel.calls != 0 {
		t.Fatalf("scaler called %d times at unity gain", sentinel.calls)
	}

	for i := range in {
		if want := in[i] * 0.5; outL[i] != want || outR[i] != want {
			t.Fatalf("index %d: got %v/%v, want engine output %v", i, outL[i], outR[i], want)
		}
	}

	s.SetInputGain(2)
	s.SetOutputGain(0.25)
	s.Process(inL, inR, outL, outR)

	if sentinel.calls != 4 {
		t.Fatalf("scaler called %d times, want 4", sentinel.calls)
	}
}

func TestStagePassthrough(t *testing.T) {
	t.Parallel()

	loader := newStubLoader(map[string]affineParams{"urn:test:fx": {mul: 3, add: 1}})

	tests := []struct {
		name  string
		stage func(t *testing.T) *Stage
	}{
		{
			name: "bypassed",
			stage: func(t *testing.T) *Stage {
				s := newStubStage("fx", loader)
				setupStage(t, s, 48000)
				s.SetBypass(true)
				s.SetInputGain(4)

				return s
			},
		},
		{
			name: "unavailable",
			stage: func(t *testing.T) *Stage {
				s := newStubStage("missing", loader)
				setupStage(t, s, 48000)
				s.SetOutputGain(4)

				return s
			},
		},
		{
			name: "not set up",
			stage: func(t *testing.T) *Stage {
				return newStubStage("fx", loader)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := tt.stage(t)

			for seed := range int64(4) {
				inL := testutil.Noise(seed, 1, testBlock)
				inR := testutil.Noise(seed+100, 1, testBlock)
				wantL, wantR := testutil.Clone(inL), testutil.Clone(inR)
				outL, outR := make([]float32, testBlock), make([]float32, testBlock)

				s.Process(inL, inR, outL, outR)

				testutil.RequireBlocksEqual(t, outL, wantL)
				testutil.RequireBlocksEqual(t, outR, wantR)
			}
		})
	}
}

func TestStageWrongBlockLengthLeavesInputUntouched(t *testing.T) {
	t.Parallel()

	loader := newStubLoader(map[string]affineParams{"urn:test:fx": {mul: 3}})
	s := newStubStage("fx", loader)
	setupStage(t, s, 48000)
	s.SetInputGain(4)
	s.SetOutputGain(2)

	const n = testBlock / 2

	inL := testutil.Noise(3, 1, n)
	inR := testutil.Noise(4, 1, n)
	wantL, wantR := testutil.Clone(inL), testutil.Clone(inR)
	outL, outR := make([]float32, n), make([]float32, n)

	s.Process(inL, inR, outL, outR)

	testutil.RequireBlocksEqual(t, outL, wantL)
	testutil.RequireBlocksEqual(t, outR, wantR)
	testutil.RequireBlocksEqual(t, inL, wantL)
	testutil.RequireBlocksEqual(t, inR, wantR)
}

func TestStageMeteringSilenceFloor(t *testing.T) {
	t.Parallel()

	loader := newStubLoader(map[string]affineParams{"urn:test:fx": {mul: 1}})
	s := newStubStage("fx", loader, WithMeterBacklog(4))
	setupStage(t, s, 48000)
	s.SetMetering(true, true)

	zero := make([]float32, testBlock)
	out := make([]float32, testBlock)
	s.Process(zero, zero, out, out)

	select {
	case l := <-s.Levels():
		for _, v := range []float64{l.InputLeft, l.InputRight, l.OutputLeft, l.OutputRight} {
			if v != core.SilenceDB {
				t.Fatalf("level = %v, want %v", v, core.SilenceDB)
			}
		}
	default:
		t.Fatal("no level notification")
	}

	s.SetMetering(true, false)
	s.Process(testutil.DC(1, testBlock), testutil.DC(1, testBlock), out, out)

	select {
	case l := <-s.Levels():
		t.Fatalf("unexpected notification %+v", l)
	default:
	}

	if got := s.LatestLevels().OutputLeft; got != 0 {
		t.Fatalf("latest output level = %v, want 0 dBFS", got)
	}
}

func TestStageBindGains(t *testing.T) {
	t.Parallel()

	b := settings.NewBackend()
	if err := settings.RegisterEffect(b, settings.Output, settings.Limiter); err != nil {
		t.Fatal(err)
	}

	v := b.Open(settings.EffectPath(settings.Output, settings.Limiter))
	defer v.Close()

	s := newStubStage("fx", newStubLoader(nil))
	if err := s.BindGains(v); err != nil {
		t.Fatal(err)
	}

	if s.InputGain() != 1 || s.OutputGain() != 1 {
		t.Fatalf("0 dB should bind to unity, got %v/%v", s.InputGain(), s.OutputGain())
	}

	if err := v.SetDouble(settings.KeyOutputGain, -20); err != nil {
		t.Fatal(err)
	}

	if got := s.OutputGain(); math.Abs(float64(got)-0.1) > 1e-7 {
		t.Fatalf("output gain = %v, want 0.1", got)
	}

	s.Close()

	if err := v.SetDouble(settings.KeyOutputGain, 0); err != nil {
		t.Fatal(err)
	}

	if got := s.OutputGain(); math.Abs(float64(got)-0.1) > 1e-7 {
		t.Fatalf("closed stage still follows the store: %v", got)
	}
}

func TestStageLatency(t *testing.T) {
	t.Parallel()

	loader := newStubLoader(map[string]affineParams{"urn:test:fx": {mul: 1, latency: 480}})
	s := newStubStage("fx", loader)
	setupStage(t, s, 48000)

	if got := s.LatencySeconds(); got != 0.01 {
		t.Fatalf("latency = %v, want 0.01", got)
	}

	s.SetBypass(true)

	if got := s.LatencySeconds(); got != 0 {
		t.Fatalf("bypassed latency = %v, want 0", got)
	}
}
