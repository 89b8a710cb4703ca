package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-fxhost/internal/engine"
	"github.com/cwbudde/algo-fxhost/internal/hostconfig"
	"github.com/cwbudde/algo-fxhost/internal/testutil"
)

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()

	cfg := hostconfig.Default()
	cfg.PresetDir = t.TempDir()
	cfg.BlockSize = 256
	cfg.Output.Spectrum = true

	e, err := engine.New(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(New(e).Handler())

	t.Cleanup(func() {
		ts.Close()
		e.Close()
	})

	return ts, e
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, &buf)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))

	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, resp))
}

func TestChainRoutes(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/chains/output", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	view := decode[chainView](t, resp)
	assert.Equal(t, "output", view.Direction)
	assert.Equal(t, 256, view.BlockSize)
	require.Len(t, view.Stages, 3)
	assert.Equal(t, "equalizer", view.Stages[0].Name)
	assert.True(t, view.Stages[0].Ready)
	assert.InDelta(t, 0.005, view.Latency, 1e-4)

	resp = do(t, http.MethodPost, ts.URL+"/chains/output/stages/limiter/up", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"equalizer", "limiter", "filter"}, decode[[]string](t, resp))

	resp = do(t, http.MethodPost, ts.URL+"/chains/output/stages/equalizer/down", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"limiter", "equalizer", "filter"}, decode[[]string](t, resp))

	resp = do(t, http.MethodPut, ts.URL+"/chains/output/stages/limiter/bypass", map[string]bool{"bypass": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/chains/output", nil)
	view = decode[chainView](t, resp)
	assert.True(t, view.Stages[0].Bypassed)
	assert.Zero(t, view.Latency)

	resp = do(t, http.MethodPost, ts.URL+"/chains/output/stages/reverb/up", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/chains/sideways", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddRemoveStage(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	resp := do(t, http.MethodPost, ts.URL+"/chains/input/stages", map[string]string{"effect": "filter"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	view := decode[chainView](t, resp)
	require.Len(t, view.Stages, 1)
	assert.Equal(t, "filter", view.Stages[0].Name)

	resp = do(t, http.MethodPost, ts.URL+"/chains/input/stages", map[string]string{"effect": "filter"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/chains/input/stages", map[string]string{"effect": "reverb"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/chains/input/stages", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodDelete, ts.URL+"/chains/input/stages/filter", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodDelete, ts.URL+"/chains/input/stages/filter", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSettingsRoutes(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	key := ts.URL + "/settings/output/equalizer/num-bands"

	resp := do(t, http.MethodGet, key, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	v := decode[settingView](t, resp)
	assert.Equal(t, "output/equalizer/num-bands", v.Key)
	assert.Equal(t, "int", v.Kind)
	assert.EqualValues(t, 32, v.Value)

	resp = do(t, http.MethodPut, key, map[string]any{"value": 8})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 8, decode[settingView](t, resp).Value)

	resp = do(t, http.MethodPut, key, map[string]any{"value": "eight"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = do(t, http.MethodPut, key, map[string]any{"value": 99})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/settings/output/equalizer/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/settings?prefix=output/limiter/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	list := decode[[]settingView](t, resp)
	assert.Len(t, list, 5)
}

func TestPresetRoutes(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/presets/output", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]string](t, resp))

	resp = do(t, http.MethodPut, ts.URL+"/settings/output/limiter/threshold", map[string]any{"value": -9.5})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/presets/output/night/save", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/presets/output", nil)
	assert.Equal(t, []string{"night"}, decode[[]string](t, resp))

	resp = do(t, http.MethodGet, ts.URL+"/presets/output/night", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc := decode[map[string]map[string]any](t, resp)
	limiter, ok := doc["output"]["limiter"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, -9.5, limiter["threshold"], 1e-9)

	resp = do(t, http.MethodPut, ts.URL+"/settings/output/limiter/threshold", map[string]any{"value": -1})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/presets/output/night/load", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/settings/output/limiter/threshold", nil)
	assert.InDelta(t, -9.5, decode[settingView](t, resp).Value, 1e-9)

	resp = do(t, http.MethodPost, ts.URL+"/presets/output/missing/load", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/presets/sideways/x/save", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodDelete, ts.URL+"/presets/output/night", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestLevelsAndSpectrum(t *testing.T) {
	t.Parallel()

	ts, e := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/chains/output/spectrum", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/chains/input/spectrum", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	c, err := e.Chain("output")
	require.NoError(t, err)

	// five whole cycles per block keeps the repeated block continuous
	tone := testutil.Sine(937.5, 48000, 0.25, 256)
	outL := make([]float32, 256)
	outR := make([]float32, 256)

	for range 20 {
		c.Process(tone, tone, outL, outR)
	}

	resp = do(t, http.MethodGet, ts.URL+"/chains/output/levels", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	levels := decode[map[string]float64](t, resp)
	assert.Greater(t, levels["input_left"], -20.0)

	resp = do(t, http.MethodGet, ts.URL+"/chains/output/spectrum", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap struct {
		BinHz float64   `json:"bin_hz"`
		DB    []float64 `json:"db"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))

	peak := 0
	for i, db := range snap.DB {
		if db > snap.DB[peak] {
			peak = i
		}
	}

	assert.InDelta(t, 937.5, float64(peak)*snap.BinHz, 2*snap.BinHz)
}
