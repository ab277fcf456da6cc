package transcribe

import (
	"context"
	"testing"
)

type fakeEngine struct {
	loadCalls   int
	unloadCalls int
	transcript  string
	err         error
}

func (f *fakeEngine) Transcribe(_ context.Context, _ []float32, _ string, _ bool) (string, error) {
	return f.transcript, f.err
}

func (f *fakeEngine) Load(context.Context) error {
	f.loadCalls++
	return nil
}

func (f *fakeEngine) Unload(context.Context) error {
	f.unloadCalls++
	return nil
}

func TestManagedEngineLazyLoadsOnce(t *testing.T) {
	fe := &fakeEngine{transcript: "hello world"}
	m := NewManagedEngine(fe, IdleNever)
	defer m.Close()

	ctx := context.Background()
	if _, err := m.Transcribe(ctx, nil, "en", false, nil, 0); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if _, err := m.Transcribe(ctx, nil, "en", false, nil, 0); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if fe.loadCalls != 1 {
		t.Fatalf("expected exactly 1 load call with IdleNever, got %d", fe.loadCalls)
	}
}

func TestManagedEngineUnloadsImmediatelyWhenConfigured(t *testing.T) {
	fe := &fakeEngine{transcript: "hi"}
	m := NewManagedEngine(fe, IdleImmediate)
	defer m.Close()

	ctx := context.Background()
	m.Transcribe(ctx, nil, "en", false, nil, 0)
	if fe.unloadCalls != 1 {
		t.Fatalf("expected unload after each call with IdleImmediate, got %d", fe.unloadCalls)
	}
}

func TestCorrectCustomWordsAppliesWithinThreshold(t *testing.T) {
	out := CorrectCustomWords("I used kubernettes today.", []CustomWord{{Word: "kubernetes"}}, 0.3)
	if out != "I used kubernetes today." {
		t.Fatalf("expected correction to apply, got %q", out)
	}
}

func TestCorrectCustomWordsLeavesUnrelatedTextAlone(t *testing.T) {
	in := "completely unrelated sentence"
	out := CorrectCustomWords(in, []CustomWord{{Word: "kubernetes"}}, 0.18)
	if out != in {
		t.Fatalf("expected no correction for unrelated text, got %q", out)
	}
}

func TestCorrectCustomWordsNoOpWithoutWords(t *testing.T) {
	in := "hello world"
	if out := CorrectCustomWords(in, nil, 0.18); out != in {
		t.Fatalf("expected passthrough, got %q", out)
	}
}
