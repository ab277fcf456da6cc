package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/handy-ai/handy-engine/pkg/config"
	"github.com/handy-ai/handy-engine/pkg/herr"
)

// AskAIState is the Ask AI sub-machine state, per spec.md §4.7.
type AskAIState int

const (
	AskAIIdle AskAIState = iota
	AskAIRecording
	AskAITranscribing
	AskAIGenerating
	AskAIComplete
	AskAIConversationActive
)

// Generator is the narrow C9 surface the Ask AI machine needs:
// streaming generation with a per-chunk callback, satisfied by
// *llmclient.OllamaClient.GenerateStream via a thin adapter.
type Generator interface {
	GenerateStream(ctx context.Context, prompt string, onChunk func(string)) (string, error)
}

// AskAIMachine implements Idle → Recording → Transcribing → Generating
// → Complete/ConversationActive (back to Recording on follow-up), with
// a shared cancel flag observed by the streaming consumer. The answer
// is returned to the caller and emitted as EventComplete; this machine
// does not paste it, so there is no paste path for the flag to unblock.
type AskAIMachine struct {
	emitter

	mu    sync.Mutex
	state AskAIState

	recording    *RecordingManager
	transcribe   Transcriber
	generate     Generator
	conversation *Conversation

	cancelled atomic.Bool

	settings func() config.Settings
}

// NewAskAIMachine builds a machine; a fresh Conversation is created on
// first Press.
func NewAskAIMachine(ctx context.Context, recording *RecordingManager, transcriber Transcriber, generator Generator, settings func() config.Settings) *AskAIMachine {
	return &AskAIMachine{
		emitter:    newEmitter(ctx),
		recording:  recording,
		transcribe: transcriber,
		generate:   generator,
		settings:   settings,
	}
}

// Press transitions Idle/ConversationActive → Recording.
func (m *AskAIMachine) Press(bindingID string) error {
	m.mu.Lock()
	if m.state != AskAIIdle && m.state != AskAIConversationActive {
		m.mu.Unlock()
		return herr.New(herr.State, "Ask AI machine not idle or awaiting follow-up")
	}
	if m.conversation == nil {
		m.conversation = NewConversation()
	}
	m.mu.Unlock()

	if !m.recording.TryStartRecording(bindingID) {
		return herr.New(herr.State, "recording already owned by another binding")
	}

	m.cancelled.Store(false)
	m.setState(AskAIRecording)
	m.emit(EventRecording, nil)
	return nil
}

// Release transcribes the question and streams the LLM's answer,
// appending the resulting Turn to the conversation. Error transitions
// return to ConversationActive if the conversation already has a turn,
// else to Idle, per spec.md §4.7.
func (m *AskAIMachine) Release(ctx context.Context, bindingID string) (string, error) {
	m.mu.Lock()
	if m.state != AskAIRecording {
		m.mu.Unlock()
		return "", herr.New(herr.State, "Ask AI machine not recording")
	}
	m.state = AskAITranscribing
	conv := m.conversation
	m.mu.Unlock()
	m.emit(EventTranscribing, nil)

	samples, owned := m.recording.StopRecording(bindingID)
	if !owned {
		m.errorFallback(conv)
		return "", herr.New(herr.State, "caller does not own the active recording")
	}

	settings := m.settings()
	question, err := m.transcribe.Transcribe(ctx, samples, settings.SelectedLanguage, settings.TranslateToEnglish, nil, settings.WordCorrectionThreshold)
	if err != nil {
		m.emit(EventError, err)
		m.errorFallback(conv)
		return "", err
	}
	if question == "" {
		m.errorFallback(conv)
		return "", nil
	}

	m.setState(AskAIGenerating)
	m.emit(EventGenerating, nil)

	prompt := buildAskAIPrompt(conv, question)
	answer, err := m.generate.GenerateStream(ctx, prompt, func(chunk string) {
		if m.cancelled.Load() {
			return
		}
		m.emit(EventTokenChunk, chunk)
	})
	if m.cancelled.Load() {
		m.errorFallback(conv)
		m.emit(EventCancelled, nil)
		return "", nil
	}
	if err != nil {
		m.emit(EventError, err)
		m.errorFallback(conv)
		return "", err
	}

	conv.AddTurn(question, answer, "")
	m.setState(AskAIConversationActive)
	m.emit(EventComplete, answer)
	return answer, nil
}

// Cancel sets the shared cancel flag observed by the streaming
// consumer, which then stops emitting token chunks; the generation call
// itself runs to completion. It also drops any in-flight recording.
func (m *AskAIMachine) Cancel() {
	m.cancelled.Store(true)
	m.recording.CancelRecording()
	m.errorFallback(m.currentConversation())
	m.emit(EventCancelled, nil)
}

// Conversation returns the active conversation, or nil if none has
// started.
func (m *AskAIMachine) Conversation() *Conversation {
	return m.currentConversation()
}

func (m *AskAIMachine) currentConversation() *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversation
}

func (m *AskAIMachine) errorFallback(conv *Conversation) {
	if conv != nil && conv.TurnCount() > 0 {
		m.setState(AskAIConversationActive)
		return
	}
	m.setState(AskAIIdle)
}

func (m *AskAIMachine) setState(s AskAIState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// State returns the current sub-machine state.
func (m *AskAIMachine) State() AskAIState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func buildAskAIPrompt(conv *Conversation, question string) string {
	if conv == nil {
		return question
	}
	const contextWindowSize = 10
	turns := conv.LastNTurns(contextWindowSize)
	if len(turns) == 0 {
		return question
	}
	out := ""
	for _, t := range turns {
		out += "Q: " + t.Question + "\nA: " + t.Response + "\n"
	}
	return out + "Q: " + question
}
