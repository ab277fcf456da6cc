package audio

import "sync"

// defaultBufferSize is roughly 100ms at 16kHz.
const defaultBufferSize = 1600

// maxBufferSize caps each ring buffer at roughly 5 seconds at 16kHz; past
// this, the oldest samples are dropped. Data loss here is policy, not a
// bug, per spec.md §4.1.
const maxBufferSize = 80000

// Mixer combines a microphone source and a system-loopback source into a
// single stream, weighted by mix_ratio, with optional clip-prevention
// normalization.
type Mixer struct {
	micBuffer    []float32
	systemBuffer []float32
	mixRatio     float32
	normalize    bool
}

// NewMixer creates a mixer with the given ratio (clamped to [0,1]) and
// normalization enabled.
func NewMixer(mixRatio float32) *Mixer {
	return &Mixer{
		micBuffer:    make([]float32, 0, defaultBufferSize),
		systemBuffer: make([]float32, 0, defaultBufferSize),
		mixRatio:     clamp01(mixRatio),
		normalize:    true,
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SetMixRatio updates the mix ratio, clamped to [0,1].
func (m *Mixer) SetMixRatio(ratio float32) {
	m.mixRatio = clamp01(ratio)
}

// MixRatio returns the current mix ratio.
func (m *Mixer) MixRatio() float32 {
	return m.mixRatio
}

// SetNormalize toggles clip-prevention normalization.
func (m *Mixer) SetNormalize(normalize bool) {
	m.normalize = normalize
}

// PushMic appends microphone samples, dropping the oldest samples past
// maxBufferSize.
func (m *Mixer) PushMic(samples []float32) {
	m.micBuffer = append(m.micBuffer, samples...)
	if over := len(m.micBuffer) - maxBufferSize; over > 0 {
		m.micBuffer = m.micBuffer[over:]
	}
}

// PushSystem appends system-loopback samples, with the same head-drop
// overflow policy as PushMic.
func (m *Mixer) PushSystem(samples []float32) {
	m.systemBuffer = append(m.systemBuffer, samples...)
	if over := len(m.systemBuffer) - maxBufferSize; over > 0 {
		m.systemBuffer = m.systemBuffer[over:]
	}
}

// AvailableSamples returns the number of samples that can be mixed right
// now: the minimum of the two buffer lengths, since a mix needs one
// sample from each source.
func (m *Mixer) AvailableSamples() int {
	return min(len(m.micBuffer), len(m.systemBuffer))
}

// Mix consumes AvailableSamples() samples from both buffers and returns
// the weighted, optionally-normalized blend. Excess samples in the
// larger buffer remain queued for the next call.
func (m *Mixer) Mix() []float32 {
	count := m.AvailableSamples()
	if count == 0 {
		return nil
	}

	out := make([]float32, count)
	micWeight := 1 - m.mixRatio
	sysWeight := m.mixRatio
	for i := 0; i < count; i++ {
		out[i] = m.micBuffer[i]*micWeight + m.systemBuffer[i]*sysWeight
	}
	m.micBuffer = m.micBuffer[count:]
	m.systemBuffer = m.systemBuffer[count:]

	if m.normalize {
		normalizeSamples(out)
	}
	return out
}

// DrainMic drains and returns the entire mic buffer, for microphone-only
// operation.
func (m *Mixer) DrainMic() []float32 {
	out := m.micBuffer
	m.micBuffer = make([]float32, 0, defaultBufferSize)
	if m.normalize {
		normalizeSamples(out)
	}
	return out
}

// DrainSystem drains and returns the entire system buffer, for
// loopback-only operation.
func (m *Mixer) DrainSystem() []float32 {
	out := m.systemBuffer
	m.systemBuffer = make([]float32, 0, defaultBufferSize)
	if m.normalize {
		normalizeSamples(out)
	}
	return out
}

// Clear empties both buffers.
func (m *Mixer) Clear() {
	m.micBuffer = m.micBuffer[:0]
	m.systemBuffer = m.systemBuffer[:0]
}

// normalizeSamples scales samples down, never up, so that the peak
// absolute value does not exceed 1.0.
func normalizeSamples(samples []float32) {
	if len(samples) == 0 {
		return
	}
	var maxAbs float32
	for _, s := range samples {
		a := s
		if a < 0 {
			a = -a
		}
		if a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs > 1.0 {
		scale := 1.0 / maxAbs
		for i := range samples {
			samples[i] *= scale
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// SharedMixer is a thread-safe wrapper around Mixer, for use from the
// audio callback (writers) and the recording manager (reader) at once.
type SharedMixer struct {
	mu    sync.Mutex
	inner *Mixer
}

// NewSharedMixer wraps a new Mixer with the given ratio.
func NewSharedMixer(mixRatio float32) *SharedMixer {
	return &SharedMixer{inner: NewMixer(mixRatio)}
}

func (s *SharedMixer) PushMic(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.PushMic(samples)
}

func (s *SharedMixer) PushSystem(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.PushSystem(samples)
}

func (s *SharedMixer) SetMixRatio(ratio float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.SetMixRatio(ratio)
}

func (s *SharedMixer) Mix() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Mix()
}

func (s *SharedMixer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.Clear()
}
