package transcribe

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
)

// CustomWord is one entry of the caller-supplied vocabulary used to
// correct transcription output.
type CustomWord struct {
	Word string
}

// ManagedEngine wraps an Engine with lazy load, idle-unload lifecycle
// management, and fuzzy custom-word correction.
type ManagedEngine struct {
	mu       sync.Mutex
	engine   Engine
	loaded   bool
	lastUsed time.Time
	idle     IdleTimeout

	stopIdleWatch chan struct{}
}

// NewManagedEngine wraps engine with the given idle-unload policy.
func NewManagedEngine(engine Engine, idle IdleTimeout) *ManagedEngine {
	m := &ManagedEngine{engine: engine, idle: idle}
	if d := idle.Duration(); d > 0 {
		m.startIdleWatch(time.Duration(d) * time.Second)
	}
	return m
}

// InitiateModelLoad is a non-blocking hint that caches the model in
// memory; errors are not surfaced (it's best-effort warmup).
func (m *ManagedEngine) InitiateModelLoad() {
	go func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.loaded {
			return
		}
		if err := m.engine.Load(context.Background()); err == nil {
			m.loaded = true
			m.lastUsed = time.Now()
		}
	}()
}

func (m *ManagedEngine) startIdleWatch(interval time.Duration) {
	m.stopIdleWatch = make(chan struct{})
	ticker := time.NewTicker(interval / 4)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-m.stopIdleWatch:
				return
			case <-ticker.C:
				m.mu.Lock()
				if m.loaded && time.Since(m.lastUsed) >= interval {
					_ = m.engine.Unload(context.Background())
					m.loaded = false
				}
				m.mu.Unlock()
			}
		}
	}()
}

// Close stops the idle-unload watcher goroutine, if any.
func (m *ManagedEngine) Close() {
	if m.stopIdleWatch != nil {
		close(m.stopIdleWatch)
	}
}

// Transcribe loads the model if needed, transcribes, applies custom-word
// correction, and unloads immediately if the policy is IdleImmediate.
func (m *ManagedEngine) Transcribe(ctx context.Context, samples []float32, language string, translateToEnglish bool, customWords []CustomWord, wordCorrectionThreshold float64) (string, error) {
	m.mu.Lock()
	if !m.loaded {
		if err := m.engine.Load(ctx); err != nil {
			m.mu.Unlock()
			return "", err
		}
		m.loaded = true
	}
	m.lastUsed = time.Now()
	m.mu.Unlock()

	text, err := m.engine.Transcribe(ctx, samples, language, translateToEnglish)

	if m.idle == IdleImmediate {
		m.mu.Lock()
		_ = m.engine.Unload(ctx)
		m.loaded = false
		m.mu.Unlock()
	}

	if err != nil {
		return "", err
	}

	return CorrectCustomWords(text, customWords, wordCorrectionThreshold), nil
}

// CorrectCustomWords runs fuzzy matching over whitespace-tokenized text,
// replacing a token when its normalized distance to a custom word is
// within threshold (lower = stricter), per spec.md §4.5.
func CorrectCustomWords(text string, customWords []CustomWord, threshold float64) string {
	if len(customWords) == 0 || strings.TrimSpace(text) == "" {
		return text
	}

	tokens := strings.Fields(text)
	for i, tok := range tokens {
		bestWord := ""
		bestDist := 1.0
		lowered := strings.ToLower(strings.Trim(tok, ".,!?;:\"'"))
		for _, cw := range customWords {
			dist := 1.0 - matchr.JaroWinkler(lowered, strings.ToLower(cw.Word), true)
			if dist < bestDist {
				bestDist = dist
				bestWord = cw.Word
			}
		}
		if bestWord != "" && bestDist <= threshold {
			tokens[i] = preserveTrailingPunctuation(tok, bestWord)
		}
	}
	return strings.Join(tokens, " ")
}

func preserveTrailingPunctuation(original, replacement string) string {
	trimmed := strings.TrimRight(original, ".,!?;:")
	suffix := original[len(trimmed):]
	return replacement + suffix
}
