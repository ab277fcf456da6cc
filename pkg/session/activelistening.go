package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/handy-ai/handy-engine/pkg/audio"
	"github.com/handy-ai/handy-engine/pkg/herr"
	"github.com/handy-ai/handy-engine/pkg/llmclient"
)

// InsightGenerator is the narrow C9 surface the Active Listening
// machine needs for per-segment insight generation; satisfied by
// *llmclient.OllamaClient.Generate via a thin adapter.
type InsightGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RAGContextSearcher is the narrow C10 surface used to fill the
// {{retrieved_context}} template variable.
type RAGContextSearcher interface {
	Search(ctx context.Context, query string, topK int, similarityThreshold float64) ([]RAGHitRef, error)
}

// RAGHitRef mirrors rag.SearchResult's ChunkText field.
type RAGHitRef struct {
	ChunkText string
}

// RAGIndexer is the narrow C10 surface used to index a completed
// insight's transcription back into the knowledge base.
type RAGIndexer interface {
	AddDocument(ctx context.Context, content, sourceType, sourceID, title, metadata string) (string, error)
}

// SuggestionDispatcher is the narrow C13 surface invoked fire-and-
// forget per completed segment.
type SuggestionDispatcher interface {
	Process(ctx context.Context, transcription string)
}

// ActiveListeningState is the Active Listening sub-machine state, per
// spec.md §4.7.
type ActiveListeningState int

const (
	ALIdle ActiveListeningState = iota
	ALListening
	ALProcessing
)

// ActiveListeningConfig bundles the segment-coupling knobs of spec.md
// §4.7/§4.10, re-read fresh from settings at StartSession so live
// config changes take effect on the next session.
type ActiveListeningConfig struct {
	SegmentDuration     time.Duration
	ContextWindowSize   int
	PromptTemplate      string
	RAGEnabled          bool
	RAGTopK             int
	RAGSimilarityThresh float64
	IndexInsights       bool
}

// ActiveListeningMachine implements Idle → Listening ↔ Processing, per
// spec.md §4.7 and the diarizer coupling of §4.10.
type ActiveListeningMachine struct {
	emitter

	recording  *RecordingManager
	transcribe Transcriber
	generate   InsightGenerator
	rag        RAGContextSearcher
	indexer    RAGIndexer
	suggest    SuggestionDispatcher
	diarizer   *audio.EnergyDiarizer
	cfg        func() ActiveListeningConfig

	mu               sync.Mutex
	state            ActiveListeningState
	session          *ListeningSession
	accum            []float32
	segmentSpeaker   *int
	frameBuf         []float32
	processingCount  int32
}

// NewActiveListeningMachine builds a machine. rag/indexer/suggest may
// be nil when their settings are disabled.
func NewActiveListeningMachine(ctx context.Context, recording *RecordingManager, transcriber Transcriber, generator InsightGenerator, rag RAGContextSearcher, indexer RAGIndexer, suggest SuggestionDispatcher, diarizer *audio.EnergyDiarizer, cfg func() ActiveListeningConfig) *ActiveListeningMachine {
	return &ActiveListeningMachine{
		emitter:    newEmitter(ctx),
		recording:  recording,
		transcribe: transcriber,
		generate:   generator,
		rag:        rag,
		indexer:    indexer,
		suggest:    suggest,
		diarizer:   diarizer,
		cfg:        cfg,
	}
}

// StartSession transitions Idle → Listening, opening the device in
// unconditional-flow mode and installing the per-sample fan-out.
func (m *ActiveListeningMachine) StartSession(topic string) (*ListeningSession, error) {
	m.mu.Lock()
	if m.state != ALIdle {
		m.mu.Unlock()
		return nil, herr.New(herr.State, "Active Listening already running")
	}
	session := NewListeningSession(topic)
	m.session = session
	m.state = ALListening
	m.accum = nil
	m.segmentSpeaker = nil
	m.frameBuf = nil
	m.mu.Unlock()

	if m.diarizer != nil {
		m.diarizer.Reset()
	}

	if err := m.recording.StartActiveListening(m.onSample); err != nil {
		m.mu.Lock()
		m.state = ALIdle
		m.session = nil
		m.mu.Unlock()
		return nil, err
	}

	m.emit(EventListening, nil)
	return session, nil
}

// onSample is installed as the recording manager's fan-out callback.
// It runs the diarizer in 30ms frames BEFORE adding samples to the
// segment accumulator, per spec.md §4.10, and spawns segment
// processing once the accumulated duration reaches the configured
// threshold.
func (m *ActiveListeningMachine) onSample(samples []float32) {
	cfg := m.cfg()
	threshold := int(cfg.SegmentDuration.Seconds() * float64(audio.TargetSampleRate))

	m.mu.Lock()
	m.frameBuf = append(m.frameBuf, samples...)
	for len(m.frameBuf) >= audio.FrameSamples {
		frame := m.frameBuf[:audio.FrameSamples]
		m.frameBuf = m.frameBuf[audio.FrameSamples:]

		if m.diarizer != nil {
			m.diarizer.ProcessFrame(frame)
			if m.segmentSpeaker == nil {
				speaker := m.diarizer.GetCurrentSpeaker()
				s := speaker
				m.segmentSpeaker = &s
			}
		}
	}
	m.accum = append(m.accum, samples...)

	var snapshot []float32
	var speaker *int
	if len(m.accum) >= threshold && threshold > 0 {
		snapshot = m.accum
		speaker = m.segmentSpeaker
		m.accum = nil
		m.segmentSpeaker = nil
	}
	session := m.session
	m.mu.Unlock()

	if snapshot != nil && session != nil {
		m.spawnSegmentProcessing(session, session.Topic, snapshot, speaker, cfg)
	}
}

// spawnSegmentProcessing captures session_id and topic before starting
// the async task (invariant SM2), so a late-arriving StopSession still
// allows this in-flight segment to attach its insight to the correct,
// now-closed session snapshot.
func (m *ActiveListeningMachine) spawnSegmentProcessing(session *ListeningSession, topic string, samples []float32, speaker *int, cfg ActiveListeningConfig) {
	atomic.AddInt32(&m.processingCount, 1)
	m.emit(EventProcessing, nil)

	go func() {
		defer func() {
			if atomic.AddInt32(&m.processingCount, -1) == 0 {
				m.emit(EventListening, nil)
			}
		}()

		ctx := context.Background()
		text, err := m.transcribe.Transcribe(ctx, samples, "auto", false, nil, 0.18)
		if err != nil || text == "" {
			// Transcription failure or silence still counts the segment
			// as "seen": no insight is appended, per spec.md §4.7.
			return
		}

		if m.suggest != nil {
			go m.suggest.Process(ctx, text)
		}

		insightText := m.generateInsight(ctx, session, topic, text, cfg)

		speakerLabel := ""
		if speaker != nil {
			speakerLabel = audio.SpeakerLabel(*speaker)
		}
		session.AppendInsight(Insight{
			Timestamp:     time.Now(),
			Transcription: text,
			InsightText:   insightText,
			DurationMs:    cfg.SegmentDuration.Milliseconds(),
			SpeakerID:     speaker,
			SpeakerLabel:  speakerLabel,
		})
		m.emit(EventInsight, insightText)

		if cfg.IndexInsights && m.indexer != nil {
			m.indexer.AddDocument(ctx, text, "active_listening_segment", session.ID, "", "")
		}
	}()
}

func (m *ActiveListeningMachine) generateInsight(ctx context.Context, session *ListeningSession, topic, transcription string, cfg ActiveListeningConfig) string {
	windowSize := cfg.ContextWindowSize
	if windowSize <= 0 {
		windowSize = 3
	}
	previous := ""
	for _, ins := range session.LastN(windowSize) {
		previous += ins.InsightText + "\n"
	}

	retrieved := ""
	if cfg.RAGEnabled && m.rag != nil {
		topK := cfg.RAGTopK
		if topK <= 0 {
			topK = 3
		}
		if hits, err := m.rag.Search(ctx, transcription, topK, cfg.RAGSimilarityThresh); err == nil {
			for _, h := range hits {
				retrieved += h.ChunkText + "\n"
			}
		}
		// Unreachable RAG search is treated as "no RAG context" and the
		// pipeline proceeds, per spec.md §4.9.
	}

	tmpl := cfg.PromptTemplate
	if tmpl == "" {
		tmpl = "{{transcription}}"
	}
	prompt := llmclient.ApplyTemplate(tmpl, llmclient.TemplateValues{
		Transcription:    transcription,
		PreviousContext:  previous,
		SessionTopic:     topic,
		RetrievedContext: retrieved,
	})

	out, err := m.generate.Generate(ctx, prompt)
	if err != nil {
		return transcription
	}
	return out
}

// StopSession flushes the remaining buffer only if ≥ 0.5s of audio
// (8000 samples) exists; otherwise it is discarded, per spec.md §4.7.
// stop is cooperative: in-flight segments started before this call may
// still append insights afterward (invariant SM3).
func (m *ActiveListeningMachine) StopSession() (*ListeningSession, error) {
	m.mu.Lock()
	if m.state != ALListening && m.state != ALProcessing {
		m.mu.Unlock()
		return nil, herr.New(herr.State, "Active Listening not running")
	}
	session := m.session
	remaining := m.accum
	speaker := m.segmentSpeaker
	m.accum = nil
	m.segmentSpeaker = nil
	m.state = ALIdle
	m.session = nil
	m.mu.Unlock()

	const minFlushSamples = 8000 // 0.5s @ 16kHz
	if len(remaining) >= minFlushSamples {
		cfg := m.cfg()
		m.spawnSegmentProcessing(session, session.Topic, remaining, speaker, cfg)
	}

	session.Close()
	if err := m.recording.StopActiveListening(); err != nil {
		return session, err
	}
	return session, nil
}

// State returns the current sub-machine state: Processing is reported
// whenever at least one segment is in flight.
func (m *ActiveListeningMachine) State() ActiveListeningState {
	m.mu.Lock()
	s := m.state
	m.mu.Unlock()
	if s == ALListening && atomic.LoadInt32(&m.processingCount) > 0 {
		return ALProcessing
	}
	return s
}

// CurrentSession returns the active session, or nil if none.
func (m *ActiveListeningMachine) CurrentSession() *ListeningSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}
