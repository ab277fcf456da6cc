package session

import (
	"context"
	"testing"
	"time"

	"github.com/handy-ai/handy-engine/pkg/audio"
)

type fakeInsightGenerator struct {
	out string
}

func (f *fakeInsightGenerator) Generate(context.Context, string) (string, error) {
	return f.out, nil
}

func testALConfig() ActiveListeningConfig {
	return ActiveListeningConfig{
		SegmentDuration:   50 * time.Millisecond,
		ContextWindowSize: 3,
		PromptTemplate:    "{{transcription}}",
	}
}

func TestActiveListeningMachineStartStop(t *testing.T) {
	rm := newTestRecordingManager()
	m := NewActiveListeningMachine(context.Background(), rm, &fakeTranscriber{text: "hello"}, &fakeInsightGenerator{out: "insight"}, nil, nil, nil, audio.NewEnergyDiarizer(audio.DefaultDiarizerConfig()), testALConfig)

	session, err := m.StartSession("standup")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if m.State() != ALListening {
		t.Fatalf("expected Listening, got %v", m.State())
	}

	closed, err := m.StopSession()
	if err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if closed.ID != session.ID {
		t.Fatalf("expected same session returned")
	}
	if !closed.IsClosed() {
		t.Fatalf("expected session closed")
	}
}

func TestActiveListeningMachineSegmentProducesInsight(t *testing.T) {
	rm := newTestRecordingManager()
	m := NewActiveListeningMachine(context.Background(), rm, &fakeTranscriber{text: "we discussed the roadmap"}, &fakeInsightGenerator{out: "roadmap discussion"}, nil, nil, nil, audio.NewEnergyDiarizer(audio.DefaultDiarizerConfig()), testALConfig)

	session, err := m.StartSession("planning")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	// 50ms segment duration @ 16kHz = 800 samples.
	samples := make([]float32, 900)
	m.onSample(samples)

	deadline := time.Now().Add(2 * time.Second)
	for len(session.SnapshotInsights()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	insights := session.SnapshotInsights()
	if len(insights) != 1 {
		t.Fatalf("expected exactly one insight, got %d", len(insights))
	}
	if insights[0].Transcription != "we discussed the roadmap" {
		t.Fatalf("unexpected insight transcription: %+v", insights[0])
	}

	m.StopSession()
}

func TestActiveListeningMachineStopSessionDiscardsShortBuffer(t *testing.T) {
	rm := newTestRecordingManager()
	m := NewActiveListeningMachine(context.Background(), rm, &fakeTranscriber{text: "short"}, &fakeInsightGenerator{out: "x"}, nil, nil, nil, audio.NewEnergyDiarizer(audio.DefaultDiarizerConfig()), testALConfig)

	m.StartSession("")
	// Push fewer than 8000 samples without reaching the segment threshold.
	m.onSample(make([]float32, 100))

	session, err := m.StopSession()
	if err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if len(session.SnapshotInsights()) != 0 {
		t.Fatalf("expected short trailing buffer to be discarded, got %d insights", len(session.SnapshotInsights()))
	}
}

func TestActiveListeningMachineRejectsDoubleStart(t *testing.T) {
	rm := newTestRecordingManager()
	m := NewActiveListeningMachine(context.Background(), rm, &fakeTranscriber{text: "x"}, &fakeInsightGenerator{out: "x"}, nil, nil, nil, audio.NewEnergyDiarizer(audio.DefaultDiarizerConfig()), testALConfig)

	if _, err := m.StartSession("a"); err != nil {
		t.Fatalf("first StartSession: %v", err)
	}
	if _, err := m.StartSession("b"); err == nil {
		t.Fatalf("expected second StartSession to fail")
	}
	m.StopSession()
}
