package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cwbudde/algo-fxhost/dsp/effectchain"
	"github.com/cwbudde/algo-fxhost/internal/engine"
	"github.com/cwbudde/algo-fxhost/measure/level"
	"github.com/cwbudde/algo-fxhost/preset"
	"github.com/cwbudde/algo-fxhost/settings"
)

const maxBodySize = 1 << 20

type stageView struct {
	Name      string       `json:"name"`
	Bypassed  bool         `json:"bypassed"`
	Available bool         `json:"available"`
	Ready     bool         `json:"ready"`
	Latency   float64      `json:"latency"`
	Levels    level.Levels `json:"levels"`
}

type chainView struct {
	Direction  string      `json:"direction"`
	SampleRate float64     `json:"sample_rate"`
	BlockSize  int         `json:"block_size"`
	Latency    float64     `json:"latency"`
	Stages     []stageView `json:"stages"`
}

type settingView struct {
	Key   string `json:"key"`
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) chain(w http.ResponseWriter, r *http.Request) (*effectchain.Chain, bool) {
	c, err := s.engine.Chain(chi.URLParam(r, "dir"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}

	return c, true
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	c, ok := s.chain(w, r)
	if !ok {
		return
	}

	view := chainView{
		Direction:  string(c.Direction()),
		SampleRate: c.SampleRate(),
		BlockSize:  c.BlockSize(),
		Latency:    c.LatencySeconds(),
		Stages:     []stageView{},
	}

	for _, name := range c.Names() {
		st, err := c.Stage(name)
		if err != nil {
			// removed concurrently
			continue
		}

		view.Stages = append(view.Stages, stageView{
			Name:      name,
			Bypassed:  st.Bypassed(),
			Available: st.Host().Available(),
			Ready:     st.Host().Ready(),
			Latency:   st.LatencySeconds(),
			Levels:    st.LatestLevels(),
		})
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	c, ok := s.chain(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, c.LatestLevels())
}

func (s *Server) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	a, ok := s.engine.Spectrum(chi.URLParam(r, "dir"))
	if !ok {
		http.Error(w, "spectrum not enabled", http.StatusNotFound)
		return
	}

	snap, ok := a.Snapshot()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAddStage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Effect string `json:"effect"`
	}

	if !s.readJSON(w, r, &body) {
		return
	}

	if err := s.engine.AddEffect(chi.URLParam(r, "dir"), body.Effect); err != nil {
		s.writeError(w, err)
		return
	}

	s.handleChain(w, r)
}

func (s *Server) handleRemoveStage(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RemoveEffect(chi.URLParam(r, "dir"), chi.URLParam(r, "name")); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMove(up bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.chain(w, r)
		if !ok {
			return
		}

		move := c.MoveDown
		if up {
			move = c.MoveUp
		}

		if err := move(chi.URLParam(r, "name")); err != nil {
			s.writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, c.Names())
	}
}

func (s *Server) handleBypass(w http.ResponseWriter, r *http.Request) {
	c, ok := s.chain(w, r)
	if !ok {
		return
	}

	st, err := c.Stage(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var body struct {
		Bypass bool `json:"bypass"`
	}

	if !s.readJSON(w, r, &body) {
		return
	}

	st.SetBypass(body.Bypass)

	writeJSON(w, http.StatusOK, map[string]bool{"bypass": st.Bypassed()})
}

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	b := s.engine.Backend()
	keys := b.Keys(r.URL.Query().Get("prefix"))

	out := make([]settingView, 0, len(keys))
	for _, key := range keys {
		v, ok := s.setting(key)
		if ok {
			out = append(out, v)
		}
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) setting(key string) (settingView, bool) {
	b := s.engine.Backend()

	desc, err := b.Describe(key)
	if err != nil {
		return settingView{}, false
	}

	v, err := b.Value(key)
	if err != nil {
		return settingView{}, false
	}

	return settingView{Key: key, Kind: desc.Kind.String(), Value: v}, true
}

func settingKey(r *http.Request) string {
	return strings.TrimPrefix(chi.URLParam(r, "*"), "/")
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := settingKey(r)

	v, ok := s.setting(key)
	if !ok {
		s.writeError(w, settings.ErrUnknownKey)
		return
	}

	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := settingKey(r)

	var body struct {
		Value any `json:"value"`
	}

	if !s.readJSON(w, r, &body) {
		return
	}

	if err := s.engine.Backend().SetValue(key, body.Value); err != nil {
		s.writeError(w, err)
		return
	}

	v, _ := s.setting(key)
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) direction(w http.ResponseWriter, r *http.Request) (settings.Direction, bool) {
	dir, err := settings.ParseDirection(chi.URLParam(r, "dir"))
	if err != nil {
		s.writeError(w, engine.ErrUnknownDirection)
		return "", false
	}

	return dir, true
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.direction(w, r)
	if !ok {
		return
	}

	names, err := s.engine.Presets().List(dir)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleReadPreset(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.direction(w, r)
	if !ok {
		return
	}

	doc, err := s.engine.Presets().Read(r.Context(), dir, chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRemovePreset(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.direction(w, r)
	if !ok {
		return
	}

	if err := s.engine.Presets().Remove(dir, chi.URLParam(r, "name")); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.direction(w, r)
	if !ok {
		return
	}

	if err := s.engine.Presets().Save(r.Context(), dir, chi.URLParam(r, "name")); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoadPreset(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.direction(w, r)
	if !ok {
		return
	}

	if err := s.engine.Presets().Load(r.Context(), dir, chi.URLParam(r, "name")); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}

	return true
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnknownDirection),
		errors.Is(err, settings.ErrUnknownKey),
		errors.Is(err, effectchain.ErrUnknownStage),
		errors.Is(err, effectchain.ErrUnknownEffect),
		errors.Is(err, preset.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, effectchain.ErrDuplicateStage):
		return http.StatusConflict
	case errors.Is(err, preset.ErrMissingField),
		errors.Is(err, preset.ErrTypeMismatch),
		errors.Is(err, preset.ErrBandIndexOutOfRange),
		errors.Is(err, preset.ErrInvalidName),
		errors.Is(err, settings.ErrTypeMismatch),
		errors.Is(err, settings.ErrInvalidValue):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", slog.Any("error", err))
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
