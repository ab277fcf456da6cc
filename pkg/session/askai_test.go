package session

import (
	"context"
	"testing"
)

type fakeGenerator struct {
	chunks []string
	final  string
	err    error
}

func (f *fakeGenerator) GenerateStream(_ context.Context, _ string, onChunk func(string)) (string, error) {
	for _, c := range f.chunks {
		onChunk(c)
	}
	return f.final, f.err
}

func TestAskAIMachineHappyPath(t *testing.T) {
	rm := newTestRecordingManager()
	gen := &fakeGenerator{chunks: []string{"hel", "lo"}, final: "hello there"}
	m := NewAskAIMachine(context.Background(), rm, &fakeTranscriber{text: "what is the weather"}, gen, testSettings)

	if err := m.Press("b1"); err != nil {
		t.Fatalf("Press: %v", err)
	}
	answer, err := m.Release(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if answer != "hello there" {
		t.Fatalf("expected answer, got %q", answer)
	}
	if m.State() != AskAIConversationActive {
		t.Fatalf("expected ConversationActive, got %v", m.State())
	}
	if m.Conversation().TurnCount() != 1 {
		t.Fatalf("expected one turn recorded")
	}
}

func TestAskAIMachineFollowUpReusesConversation(t *testing.T) {
	rm := newTestRecordingManager()
	gen := &fakeGenerator{final: "first answer"}
	m := NewAskAIMachine(context.Background(), rm, &fakeTranscriber{text: "first question"}, gen, testSettings)

	m.Press("b1")
	m.Release(context.Background(), "b1")
	conv := m.Conversation()

	gen.final = "second answer"
	if err := m.Press("b1"); err != nil {
		t.Fatalf("follow-up Press: %v", err)
	}
	m.transcribe = &fakeTranscriber{text: "second question"}
	if _, err := m.Release(context.Background(), "b1"); err != nil {
		t.Fatalf("follow-up Release: %v", err)
	}
	if m.Conversation() != conv {
		t.Fatalf("expected conversation to be reused across follow-up")
	}
	if conv.TurnCount() != 2 {
		t.Fatalf("expected two turns, got %d", conv.TurnCount())
	}
}

func TestAskAIMachineErrorFallsBackToIdleWithoutTurns(t *testing.T) {
	rm := newTestRecordingManager()
	gen := &fakeGenerator{err: errTest}
	m := NewAskAIMachine(context.Background(), rm, &fakeTranscriber{text: "question"}, gen, testSettings)

	m.Press("b1")
	if _, err := m.Release(context.Background(), "b1"); err == nil {
		t.Fatalf("expected error from generator")
	}
	if m.State() != AskAIIdle {
		t.Fatalf("expected Idle after error with no prior turns, got %v", m.State())
	}
}

func TestAskAIMachineCancelSetsFlag(t *testing.T) {
	rm := newTestRecordingManager()
	m := NewAskAIMachine(context.Background(), rm, &fakeTranscriber{text: "q"}, &fakeGenerator{final: "a"}, testSettings)
	m.Press("b1")
	m.Cancel()
	if !m.cancelled.Load() {
		t.Fatalf("expected cancelled flag set")
	}
}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

var errTest = &testErr{"generation failed"}
