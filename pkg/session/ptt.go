package session

import (
	"context"
	"errors"
	"sync"

	"github.com/handy-ai/handy-engine/pkg/config"
	"github.com/handy-ai/handy-engine/pkg/herr"
)

// Transcriber is the narrow C6 surface the sub-machines need;
// *transcribe.ManagedEngine satisfies it through a thin adapter that
// converts CustomWordRef to transcribe.CustomWord.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, language string, translateToEnglish bool, customWords []CustomWordRef, wordCorrectionThreshold float64) (string, error)
}

// CustomWordRef mirrors transcribe.CustomWord without importing the
// transcribe package, avoiding an import cycle risk as the two
// packages grow independently.
type CustomWordRef struct {
	Word string
}

// PostProcessor is the narrow C11 surface the sub-machines need;
// satisfied by *postprocess.Pipeline via a thin adapter in cmd/ wiring.
type PostProcessor interface {
	Run(ctx context.Context, transcription, selectedLanguage string, postProcessEnabled bool, prompt string) PostProcessResult
}

// PostProcessResult mirrors postprocess.Result.
type PostProcessResult struct {
	TranscriptionText string
	PostProcessedText string
	PromptUsed        string
}

// FinalText returns PostProcessedText if non-empty, else
// TranscriptionText.
func (r PostProcessResult) FinalText() string {
	if r.PostProcessedText != "" {
		return r.PostProcessedText
	}
	return r.TranscriptionText
}

// Dispatcher is the narrow paste-dispatch surface; satisfied by a thin
// wrapper over postprocess.Dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string, method config.PasteMethod, delayMs int, clipboardHandling config.ClipboardHandling) error
}

// HistoryRecorder is the narrow C12 surface the sub-machines need;
// *history.Store satisfies it through a thin adapter, since its Insert
// returns the concrete *history.Entry.
type HistoryRecorder interface {
	Insert(fileName, title, transcription, postProcessed, postProcessPrompt string) (HistoryEntryRef, error)
}

// HistoryEntryRef is an opaque handle the sub-machines don't inspect;
// kept as an interface{} alias to avoid importing pkg/history's
// concrete Entry type into pkg/session.
type HistoryEntryRef = interface{}

// RecordingWriter persists a finished recording to disk and returns
// the reference (e.g. file name) the history store should carry;
// satisfied by a thin wrapper over audio.WriteWavFile.
type RecordingWriter interface {
	Write(samples []float32) (string, error)
}

// PTTState is the Push-to-Talk Transcribe sub-machine state, per
// spec.md §4.7.
type PTTState int

const (
	PTTIdle PTTState = iota
	PTTRecording
	PTTTranscribing
)

// PTTMachine implements Idle → Recording (press) → Transcribing
// (release) → Idle.
type PTTMachine struct {
	emitter

	mu    sync.Mutex
	state PTTState

	recording *RecordingManager
	transcribe Transcriber
	postprocess PostProcessor
	dispatch   Dispatcher
	history    HistoryRecorder
	files      RecordingWriter

	settings func() config.Settings
}

// NewPTTMachine builds a machine wired to its collaborators. settings
// is called fresh on every release so live config changes take effect
// without restarting the machine. files may be nil, in which case
// history entries carry no audio file reference.
func NewPTTMachine(ctx context.Context, recording *RecordingManager, transcriber Transcriber, pp PostProcessor, dispatch Dispatcher, history HistoryRecorder, files RecordingWriter, settings func() config.Settings) *PTTMachine {
	return &PTTMachine{
		emitter:     newEmitter(ctx),
		recording:   recording,
		transcribe:  transcriber,
		postprocess: pp,
		dispatch:    dispatch,
		history:     history,
		files:       files,
		settings:    settings,
	}
}

// Press transitions Idle → Recording, claiming recording ownership
// under bindingID.
func (m *PTTMachine) Press(bindingID string) error {
	m.mu.Lock()
	if m.state != PTTIdle {
		m.mu.Unlock()
		return herr.New(herr.State, "PTT machine not idle")
	}
	m.mu.Unlock()

	if !m.recording.TryStartRecording(bindingID) {
		return herr.New(herr.State, "recording already owned by another binding")
	}

	m.mu.Lock()
	m.state = PTTRecording
	m.mu.Unlock()
	m.emit(EventRecording, nil)
	return nil
}

// Release transitions Recording → Transcribing → Idle, running
// transcription, post-processing, paste dispatch, and history
// persistence. Empty transcriptions are silently dropped: no paste, no
// history row (spec.md §5 "User-visible failure").
func (m *PTTMachine) Release(ctx context.Context, bindingID string) (string, error) {
	m.mu.Lock()
	if m.state != PTTRecording {
		m.mu.Unlock()
		return "", herr.New(herr.State, "PTT machine not recording")
	}
	m.state = PTTTranscribing
	m.mu.Unlock()
	m.emit(EventTranscribing, nil)

	samples, owned := m.recording.StopRecording(bindingID)
	if !owned {
		m.reset()
		return "", herr.New(herr.State, "caller does not own the active recording")
	}

	defer m.reset()

	settings := m.settings()
	text, err := m.transcribe.Transcribe(ctx, samples, settings.SelectedLanguage, settings.TranslateToEnglish, nil, settings.WordCorrectionThreshold)
	if err != nil {
		if errors.Is(err, herr.ErrCancelled) {
			m.emit(EventCancelled, nil)
			return "", nil
		}
		m.emit(EventError, err)
		return "", err
	}
	if text == "" {
		m.emit(EventComplete, "")
		return "", nil
	}

	prompt := selectedPrompt(settings.PostProcessPrompts, settings.PostProcessSelectedPromptID)
	result := m.postprocess.Run(ctx, text, settings.SelectedLanguage, settings.PostProcessEnabled, prompt)
	final := result.FinalText()

	if m.dispatch != nil {
		if err := m.dispatch.Dispatch(ctx, final, settings.PasteMethod, settings.PasteDelayMs, settings.ClipboardHandling); err != nil {
			m.emit(EventError, err)
		}
	}

	if m.history != nil {
		fileName := ""
		if m.files != nil {
			if name, err := m.files.Write(samples); err != nil {
				m.emit(EventError, err)
			} else {
				fileName = name
			}
		}
		m.history.Insert(fileName, "", result.TranscriptionText, result.PostProcessedText, result.PromptUsed)
	}

	m.emit(EventComplete, final)
	return final, nil
}

// Cancel drops the in-flight recording without transcribing it.
func (m *PTTMachine) Cancel() {
	m.recording.CancelRecording()
	m.reset()
	m.emit(EventCancelled, nil)
}

func (m *PTTMachine) reset() {
	m.mu.Lock()
	m.state = PTTIdle
	m.mu.Unlock()
}

// State returns the current sub-machine state.
func (m *PTTMachine) State() PTTState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// selectedPrompt returns the Prompt text whose ID matches selectedID,
// falling back to the first configured prompt if selectedID is empty or
// matches none (e.g. a stale ID left over from a deleted entry).
func selectedPrompt(prompts []config.PostProcessPrompt, selectedID string) string {
	if len(prompts) == 0 {
		return ""
	}
	for _, p := range prompts {
		if p.ID == selectedID {
			return p.Prompt
		}
	}
	return prompts[0].Prompt
}
