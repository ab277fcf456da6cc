package audio

import "testing"

func silentFrame() []float32 {
	return make([]float32, FrameSamples)
}

func loudFrame(amp float32) []float32 {
	f := make([]float32, FrameSamples)
	for i := range f {
		if i%2 == 0 {
			f[i] = amp
		} else {
			f[i] = -amp
		}
	}
	return f
}

func TestDiarizerResetYieldsSingleSpeaker(t *testing.T) {
	d := NewEnergyDiarizer(DefaultDiarizerConfig())
	d.Reset()
	if change := d.ProcessFrame(silentFrame()); change != nil {
		t.Fatalf("expected no change on silence after reset, got %+v", change)
	}
	if d.GetSpeakerCount() != 1 {
		t.Fatalf("expected speaker_count == 1 before any speaker toggle, got %d", d.GetSpeakerCount())
	}
	if d.GetCurrentSpeaker() != 0 {
		t.Fatalf("expected speaker 0 after reset")
	}
}

func TestDiarizerTogglesOnSilenceThenLouderSpeech(t *testing.T) {
	d := NewEnergyDiarizer(DefaultDiarizerConfig())

	framesPerSecond := TargetSampleRate / FrameSamples
	// > 1s of moderate speech to clear samples_since_change gating.
	for i := 0; i < framesPerSecond+5; i++ {
		d.ProcessFrame(loudFrame(0.1))
	}

	// > 500ms of silence.
	silenceFrames := (500*TargetSampleRate/1000)/FrameSamples + 2
	for i := 0; i < silenceFrames; i++ {
		d.ProcessFrame(silentFrame())
	}

	var change *SpeakerChange
	for i := 0; i < 3; i++ {
		if c := d.ProcessFrame(loudFrame(0.3)); c != nil {
			change = c
			break
		}
	}
	if change == nil {
		t.Fatalf("expected a speaker change after long silence followed by speech")
	}
	if change.NewSpeaker == change.PreviousSpeaker {
		t.Fatalf("expected speaker toggle, got same speaker %d", change.NewSpeaker)
	}
	if d.GetSpeakerCount() != 2 {
		t.Fatalf("expected speaker_count == 2 after first toggle, got %d", d.GetSpeakerCount())
	}
}

func TestDiarizerNeverReportsZeroSpeakers(t *testing.T) {
	d := NewEnergyDiarizer(DefaultDiarizerConfig())
	for i := 0; i < 50; i++ {
		d.ProcessFrame(loudFrame(0.2))
	}
	if d.GetSpeakerCount() < 1 {
		t.Fatalf("invariant D1 violated: speaker_count < 1")
	}
}
