// Package suggestion implements the real-time suggestion engine (C13):
// keyword-triggered quick responses, RAG-backed suggestions, and
// optional LLM suggestions, dispatched fire-and-forget per segment,
// per spec.md §4.13.
package suggestion

import (
	"context"
	"strings"

	"github.com/handy-ai/handy-engine/pkg/config"
)

// Kind distinguishes the origin of a Suggestion.
type Kind string

const (
	KindQuickResponse Kind = "quick_response"
	KindRAG           Kind = "rag"
	KindLLM           Kind = "llm"
)

// Suggestion is one emitted hint.
type Suggestion struct {
	Kind       Kind
	Text       string
	Confidence float64
	SourceID   string
}

// RAGSearcher is the narrow C10 surface this package needs.
type RAGSearcher interface {
	Search(ctx context.Context, query string, topK int, similarityThreshold float64) ([]RAGHit, error)
}

// RAGHit mirrors rag.SearchResult's fields this package consumes,
// avoiding a hard import-time dependency edge on pkg/rag's storage
// details.
type RAGHit struct {
	ChunkText  string
	Similarity float64
	DocumentID string
}

// LLMSuggester is the narrow C9 surface this package needs.
type LLMSuggester interface {
	Suggest(ctx context.Context, transcription string) (string, error)
}

// Logger is the narrow logging surface this package needs.
type Logger interface {
	Warn(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...interface{}) {}

// Engine runs the three suggestion passes of spec.md §4.13 and emits
// results with non-blocking sends on a buffered channel, mirroring the
// teacher's ManagedStream.emit pattern. The Engine starts no goroutine
// of its own; consumers read the channel through Out().
type Engine struct {
	settings config.Suggestions
	rag      RAGSearcher
	llm      LLMSuggester
	logger   Logger

	out chan Suggestion
}

// NewEngine builds an Engine. rag/llm may be nil when their respective
// settings are disabled; out is buffered at capacity 64 so a slow
// consumer never blocks the segment-processing pipeline.
func NewEngine(settings config.Suggestions, rag RAGSearcher, llm LLMSuggester, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		settings: settings,
		rag:      rag,
		llm:      llm,
		logger:   logger,
		out:      make(chan Suggestion, 64),
	}
}

// Out is the channel consumers drain for emitted suggestions.
func (e *Engine) Out() <-chan Suggestion {
	return e.out
}

// Close closes the output channel. Callers must stop calling Process
// before closing.
func (e *Engine) Close() {
	close(e.out)
}

// Process runs all enabled passes over transcription and emits the
// resulting suggestions. The RAG and LLM passes run synchronously in
// the caller's goroutine; emission itself never blocks, since a
// suggestion that finds the buffer full is dropped. It never returns an
// error: pass failures are logged and skipped.
func (e *Engine) Process(ctx context.Context, transcription string) {
	if !e.settings.Enabled {
		return
	}

	found := e.keywordPass(transcription)

	if e.settings.RAGSuggestionsEnabled && e.rag != nil {
		found = append(found, e.ragPass(ctx, transcription)...)
	}

	if e.settings.LLMSuggestionsEnabled && e.llm != nil {
		if s, ok := e.llmPass(ctx, transcription); ok {
			found = append(found, s)
		}
	}

	bounded := e.bound(found)
	for _, s := range bounded {
		e.emit(s)
	}
}

func (e *Engine) keywordPass(transcription string) []Suggestion {
	lowered := strings.ToLower(transcription)
	var out []Suggestion
	for _, qr := range e.settings.QuickResponses {
		if !qr.Enabled {
			continue
		}
		for _, phrase := range qr.TriggerPhrases {
			if phrase == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(phrase)) {
				out = append(out, Suggestion{
					Kind:       KindQuickResponse,
					Text:       qr.ResponseTmpl,
					Confidence: 1.0,
					SourceID:   qr.ID,
				})
				break
			}
		}
	}
	return out
}

func (e *Engine) ragPass(ctx context.Context, transcription string) []Suggestion {
	topK := e.settings.MaxSuggestions
	if topK <= 0 {
		topK = 3
	}
	hits, err := e.rag.Search(ctx, transcription, topK, e.settings.MinConfidence)
	if err != nil {
		e.logger.Warn("rag suggestion search failed", "error", err)
		return nil
	}
	out := make([]Suggestion, 0, len(hits))
	for _, h := range hits {
		out = append(out, Suggestion{
			Kind:       KindRAG,
			Text:       h.ChunkText,
			Confidence: h.Similarity,
			SourceID:   h.DocumentID,
		})
	}
	return out
}

func (e *Engine) llmPass(ctx context.Context, transcription string) (Suggestion, bool) {
	text, err := e.llm.Suggest(ctx, transcription)
	if err != nil {
		e.logger.Warn("llm suggestion call failed", "error", err)
		return Suggestion{}, false
	}
	if strings.TrimSpace(text) == "" {
		return Suggestion{}, false
	}
	return Suggestion{Kind: KindLLM, Text: text, Confidence: 1.0}, true
}

// bound filters by min_confidence and truncates to max_suggestions,
// per spec.md §4.13 step 3.
func (e *Engine) bound(found []Suggestion) []Suggestion {
	filtered := found[:0]
	for _, s := range found {
		if s.Confidence >= e.settings.MinConfidence {
			filtered = append(filtered, s)
		}
	}
	if e.settings.MaxSuggestions > 0 && len(filtered) > e.settings.MaxSuggestions {
		filtered = filtered[:e.settings.MaxSuggestions]
	}
	return filtered
}

func (e *Engine) emit(s Suggestion) {
	select {
	case e.out <- s:
	default:
		e.logger.Warn("suggestion dropped, output channel full", "kind", s.Kind)
	}
}
