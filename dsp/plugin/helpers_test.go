package plugin

import (
	"errors"
	"sync"
)

// stubInstance records controls and scales the input by the "gain" port.
type stubInstance struct {
	mu       sync.Mutex
	rate     float64
	controls map[string]float64
	runs     int
	latency  int
	closed   bool
}

func (s *stubInstance) Ports() []Port {
	return []Port{{Name: "gain", Min: 0, Max: 4, Default: 1}}
}

func (s *stubInstance) SetControl(port string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.controls[port] = v

	return nil
}

func (s *stubInstance) control(port string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.controls[port]

	return v, ok
}

func (s *stubInstance) Run(inL, inR, outL, outR []float32) {
	s.runs++

	g := float32(1)
	if v, ok := s.controls["gain"]; ok {
		g = float32(v)
	}

	for i := range inL {
		outL[i] = inL[i] * g
		outR[i] = inR[i] * g
	}
}

func (s *stubInstance) Latency() int { return s.latency }

func (s *stubInstance) Close() error {
	s.closed = true
	return nil
}

// stubLoader hands out stubInstances and keeps every one it created.
type stubLoader struct {
	known     map[string]bool
	failNext  bool
	latency   int
	instances []*stubInstance
}

func newStubLoader(uris ...string) *stubLoader {
	l := &stubLoader{known: map[string]bool{}}
	for _, u := range uris {
		l.known[u] = true
	}

	return l
}

func (l *stubLoader) Has(uri string) bool { return l.known[uri] }

func (l *stubLoader) Instantiate(uri string, rate float64) (Instance, error) {
	if l.failNext {
		l.failNext = false
		return nil, errors.New("boom")
	}

	inst := &stubInstance{rate: rate, controls: map[string]float64{}, latency: l.latency}
	l.instances = append(l.instances, inst)

	return inst, nil
}
