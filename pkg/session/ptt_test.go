package session

import (
	"context"
	"testing"

	"github.com/handy-ai/handy-engine/pkg/config"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, []float32, string, bool, []CustomWordRef, float64) (string, error) {
	return f.text, f.err
}

type fakePostProcessor struct{}

func (fakePostProcessor) Run(_ context.Context, transcription, _ string, _ bool, _ string) PostProcessResult {
	return PostProcessResult{TranscriptionText: transcription}
}

type fakeDispatcher struct {
	pasted []string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, text string, _ config.PasteMethod, _ int, _ config.ClipboardHandling) error {
	f.pasted = append(f.pasted, text)
	return nil
}

type fakeHistory struct {
	inserted  []string
	fileNames []string
}

func (f *fakeHistory) Insert(fileName, _, transcription, _, _ string) (HistoryEntryRef, error) {
	f.inserted = append(f.inserted, transcription)
	f.fileNames = append(f.fileNames, fileName)
	return nil, nil
}

func testSettings() config.Settings {
	s := config.Default()
	s.SelectedLanguage = "en"
	return s
}

func newTestRecordingManager() *RecordingManager {
	return NewRecordingManager(&fakeDevice{}, nil, nil, NoopSystemAudio{})
}

type fakeRecordingWriter struct {
	written [][]float32
}

func (f *fakeRecordingWriter) Write(samples []float32) (string, error) {
	f.written = append(f.written, samples)
	return "rec.wav", nil
}

func TestSelectedPromptMatchesByID(t *testing.T) {
	prompts := []config.PostProcessPrompt{
		{ID: "a", Prompt: "prompt a"},
		{ID: "b", Prompt: "prompt b"},
	}
	if got := selectedPrompt(prompts, "b"); got != "prompt b" {
		t.Fatalf("expected prompt b, got %q", got)
	}
	if got := selectedPrompt(prompts, "missing"); got != "prompt a" {
		t.Fatalf("expected fallback to first prompt, got %q", got)
	}
	if got := selectedPrompt(nil, "a"); got != "" {
		t.Fatalf("expected empty string for no configured prompts, got %q", got)
	}
}

func TestPTTMachinePressRequiresIdle(t *testing.T) {
	rm := newTestRecordingManager()
	m := NewPTTMachine(context.Background(), rm, &fakeTranscriber{text: "hi"}, fakePostProcessor{}, &fakeDispatcher{}, &fakeHistory{}, nil, testSettings)

	if err := m.Press("b1"); err != nil {
		t.Fatalf("first Press: %v", err)
	}
	if err := m.Press("b2"); err == nil {
		t.Fatalf("expected second Press to fail while recording")
	}
}

func TestPTTMachineReleaseDispatchesAndRecordsHistory(t *testing.T) {
	rm := newTestRecordingManager()
	disp := &fakeDispatcher{}
	hist := &fakeHistory{}
	files := &fakeRecordingWriter{}
	m := NewPTTMachine(context.Background(), rm, &fakeTranscriber{text: "hello world"}, fakePostProcessor{}, disp, hist, files, testSettings)

	if err := m.Press("b1"); err != nil {
		t.Fatalf("Press: %v", err)
	}
	final, err := m.Release(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if final != "hello world" {
		t.Fatalf("expected final text, got %q", final)
	}
	if len(disp.pasted) != 1 || disp.pasted[0] != "hello world" {
		t.Fatalf("expected one dispatch call, got %v", disp.pasted)
	}
	if len(hist.inserted) != 1 {
		t.Fatalf("expected one history insert, got %v", hist.inserted)
	}
	if len(files.written) != 1 || hist.fileNames[0] != "rec.wav" {
		t.Fatalf("expected recording written to disk and referenced in history, got files=%v names=%v", files.written, hist.fileNames)
	}
	if m.State() != PTTIdle {
		t.Fatalf("expected machine to return to Idle, got %v", m.State())
	}
}

func TestPTTMachineEmptyTranscriptionSkipsPasteAndHistory(t *testing.T) {
	rm := newTestRecordingManager()
	disp := &fakeDispatcher{}
	hist := &fakeHistory{}
	m := NewPTTMachine(context.Background(), rm, &fakeTranscriber{text: ""}, fakePostProcessor{}, disp, hist, nil, testSettings)

	m.Press("b1")
	final, err := m.Release(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if final != "" {
		t.Fatalf("expected empty final text, got %q", final)
	}
	if len(disp.pasted) != 0 || len(hist.inserted) != 0 {
		t.Fatalf("expected no paste/history on empty transcription")
	}
}

func TestPTTMachineReleaseRejectsNonOwner(t *testing.T) {
	rm := newTestRecordingManager()
	m := NewPTTMachine(context.Background(), rm, &fakeTranscriber{text: "hi"}, fakePostProcessor{}, &fakeDispatcher{}, &fakeHistory{}, nil, testSettings)

	m.Press("b1")
	if _, err := m.Release(context.Background(), "b2"); err == nil {
		t.Fatalf("expected release by non-owner to fail")
	}
}

func TestPTTMachineCancelDropsRecording(t *testing.T) {
	rm := newTestRecordingManager()
	m := NewPTTMachine(context.Background(), rm, &fakeTranscriber{text: "hi"}, fakePostProcessor{}, &fakeDispatcher{}, &fakeHistory{}, nil, testSettings)

	m.Press("b1")
	m.Cancel()
	if m.State() != PTTIdle {
		t.Fatalf("expected Idle after cancel, got %v", m.State())
	}
	if rm.IsRecording() {
		t.Fatalf("expected recording manager to be released after cancel")
	}
}
