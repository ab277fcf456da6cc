package audio

import "testing"

func approxEqual(a, b, eps float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < eps
}

func TestMixerRatioClamping(t *testing.T) {
	m := NewMixer(1.5)
	if m.MixRatio() != 1.0 {
		t.Fatalf("expected clamp to 1.0, got %v", m.MixRatio())
	}
	m.SetMixRatio(-0.5)
	if m.MixRatio() != 0.0 {
		t.Fatalf("expected clamp to 0.0, got %v", m.MixRatio())
	}
}

func TestMixerEqualRatio(t *testing.T) {
	m := NewMixer(0.5)
	m.PushMic([]float32{0.5, 0.5, 0.5})
	m.PushSystem([]float32{0.3, 0.3, 0.3})

	mixed := m.Mix()
	if len(mixed) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(mixed))
	}
	for _, s := range mixed {
		if !approxEqual(s, 0.4, 0.001) {
			t.Fatalf("expected ~0.4, got %v", s)
		}
	}
}

func TestMixerMicOnly(t *testing.T) {
	m := NewMixer(0.0)
	m.PushMic([]float32{0.5, 0.5, 0.5})
	m.PushSystem([]float32{0.3, 0.3, 0.3})
	mixed := m.Mix()
	for _, s := range mixed {
		if !approxEqual(s, 0.5, 0.001) {
			t.Fatalf("expected ~0.5, got %v", s)
		}
	}
}

func TestMixerSystemOnly(t *testing.T) {
	m := NewMixer(1.0)
	m.PushMic([]float32{0.5, 0.5, 0.5})
	m.PushSystem([]float32{0.3, 0.3, 0.3})
	mixed := m.Mix()
	for _, s := range mixed {
		if !approxEqual(s, 0.3, 0.001) {
			t.Fatalf("expected ~0.3, got %v", s)
		}
	}
}

func TestMixerNormalizationNeverExceedsOne(t *testing.T) {
	m := NewMixer(0.5)
	loud := []float32{0.8, 0.9, 1.0}
	m.PushMic(loud)
	m.PushSystem(loud)
	mixed := m.Mix()
	for _, s := range mixed {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > 1.0 {
			t.Fatalf("sample %v exceeds 1.0 after normalization", s)
		}
	}
}

func TestMixerUnequalBuffers(t *testing.T) {
	m := NewMixer(0.5)
	m.PushMic([]float32{0.5, 0.5, 0.5, 0.5, 0.5})
	m.PushSystem([]float32{0.3, 0.3, 0.3})

	if got := m.AvailableSamples(); got != 3 {
		t.Fatalf("expected available=3, got %d", got)
	}

	mixed := m.Mix()
	if len(mixed) != 3 {
		t.Fatalf("expected 3 mixed samples, got %d", len(mixed))
	}
	if got := m.AvailableSamples(); got != 0 {
		t.Fatalf("expected available=0 after mix, got %d", got)
	}
	if got := len(m.micBuffer); got != 2 {
		t.Fatalf("expected 2 leftover mic samples, got %d", got)
	}
}

func TestMixerDrainMic(t *testing.T) {
	m := NewMixer(0.5)
	m.PushMic([]float32{0.5, 0.5, 0.5})
	drained := m.DrainMic()
	if len(drained) != 3 {
		t.Fatalf("expected 3 drained samples, got %d", len(drained))
	}
	if len(m.micBuffer) != 0 {
		t.Fatalf("expected mic buffer empty after drain")
	}
}

func TestMixerClear(t *testing.T) {
	m := NewMixer(0.5)
	m.PushMic([]float32{0.5, 0.5})
	m.PushSystem([]float32{0.3, 0.3})
	m.Clear()
	if m.AvailableSamples() != 0 {
		t.Fatalf("expected empty buffers after clear")
	}
}

func TestMixerOverflowDropsOldest(t *testing.T) {
	m := NewMixer(0.5)
	big := make([]float32, maxBufferSize+100)
	for i := range big {
		big[i] = 1.0
	}
	m.PushMic(big)
	if len(m.micBuffer) != maxBufferSize {
		t.Fatalf("expected buffer capped at %d, got %d", maxBufferSize, len(m.micBuffer))
	}
}

func TestSharedMixerPushAndMix(t *testing.T) {
	sm := NewSharedMixer(0.5)
	sm.PushMic([]float32{0.5, 0.5, 0.5})
	sm.PushSystem([]float32{0.3, 0.3, 0.3})
	mixed := sm.Mix()
	if len(mixed) != 3 {
		t.Fatalf("expected 3 mixed samples, got %d", len(mixed))
	}
}
