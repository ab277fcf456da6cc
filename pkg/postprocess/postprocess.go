// Package postprocess implements the post-transcription pipeline (C11):
// Chinese variant conversion, optional LLM-based rewrite, and paste
// dispatch, per spec.md §4.11.
package postprocess

import (
	"context"
	"strings"

	"github.com/handy-ai/handy-engine/pkg/config"
	"github.com/handy-ai/handy-engine/pkg/llmclient"
	"github.com/longbridgeapp/opencc"
)

// Completer is the narrow LLM surface this package needs; satisfied by
// *llmclient.ChatCompletionClient.
type Completer interface {
	Complete(ctx context.Context, messages []llmclient.ChatMessage) (string, error)
}

// Logger is the narrow logging surface this package needs.
type Logger interface {
	Warn(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...interface{}) {}

// Result is the outcome of running the pipeline, carrying both the
// final text and the intermediate one so the caller's history row can
// record both, per spec.md's HistoryEntry shape.
type Result struct {
	TranscriptionText string
	PostProcessedText string
	PromptUsed        string
}

// Pipeline runs Chinese variant conversion when the language is a
// Chinese variant, and otherwise an optional LLM rewrite, per spec.md
// §4.11's numbered steps.
type Pipeline struct {
	completer Completer
	logger    Logger
}

// NewPipeline builds a Pipeline. completer may be nil when
// post-processing is never configured.
func NewPipeline(completer Completer, logger Logger) *Pipeline {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Pipeline{completer: completer, logger: logger}
}

// Run applies step 1 (Chinese variant conversion) if selectedLanguage
// calls for it; otherwise step 2 (LLM rewrite) if configured and a
// non-empty prompt is set. Any failure in either branch falls back to
// the original transcription text, per spec.md.
func (p *Pipeline) Run(ctx context.Context, transcription, selectedLanguage string, postProcessEnabled bool, prompt string) Result {
	res := Result{TranscriptionText: transcription}

	switch selectedLanguage {
	case "zh-Hans":
		if converted, err := convertVariant(transcription, "t2s"); err == nil {
			res.PostProcessedText = converted
			return res
		} else {
			p.logger.Warn("chinese variant conversion failed", "error", err)
		}
	case "zh-Hant":
		if converted, err := convertVariant(transcription, "s2t"); err == nil {
			res.PostProcessedText = converted
			return res
		} else {
			p.logger.Warn("chinese variant conversion failed", "error", err)
		}
	default:
		if postProcessEnabled && p.completer != nil && strings.TrimSpace(prompt) != "" {
			filled := strings.ReplaceAll(prompt, "${output}", transcription)
			out, err := p.completer.Complete(ctx, []llmclient.ChatMessage{{Role: "user", Content: filled}})
			if err != nil {
				p.logger.Warn("post-processing rewrite failed, falling back to raw transcription", "error", err)
				return res
			}
			if strings.TrimSpace(out) != "" {
				res.PostProcessedText = out
				res.PromptUsed = prompt
			}
		}
	}

	return res
}

// FinalText returns the text that should be pasted and persisted:
// the post-processed text if the pipeline produced one, else the raw
// transcription.
func (r Result) FinalText() string {
	if r.PostProcessedText != "" {
		return r.PostProcessedText
	}
	return r.TranscriptionText
}

func convertVariant(text, direction string) (string, error) {
	conv, err := opencc.New(direction)
	if err != nil {
		return "", err
	}
	return conv.Convert(text)
}

// Paster synthesizes the paste/insert of text into the focused foreign
// application; the concrete key-synthesis backend is an external
// collaborator per spec.md's scope note on keyboard synthesis.
type Paster interface {
	Paste(ctx context.Context, text string, method config.PasteMethod, delayMs int, clipboard config.ClipboardHandling) error
}

// ClipboardWriter is the narrow clipboard surface Dispatch needs for
// the CopyToClipboard side effect.
type ClipboardWriter interface {
	WriteText(text string) error
}

// Dispatch runs the paste policy: clipboard write and keystroke paste
// are independent steps, so PasteMethod=None still honors
// ClipboardHandling=CopyToClipboard (resolved Open Question, see
// DESIGN.md).
func Dispatch(ctx context.Context, paster Paster, clipboard ClipboardWriter, text string, method config.PasteMethod, delayMs int, clipboardHandling config.ClipboardHandling) error {
	if clipboardHandling == config.ClipboardCopyToClipboard && clipboard != nil {
		if err := clipboard.WriteText(text); err != nil {
			return err
		}
	}
	if method == config.PasteNone {
		return nil
	}
	return paster.Paste(ctx, text, method, delayMs, clipboardHandling)
}

// NoopPaster is a test double satisfying Paster.
type NoopPaster struct {
	Calls []string
}

func (n *NoopPaster) Paste(_ context.Context, text string, _ config.PasteMethod, _ int, _ config.ClipboardHandling) error {
	n.Calls = append(n.Calls, text)
	return nil
}

// NoopClipboard is a test double satisfying ClipboardWriter.
type NoopClipboard struct {
	Writes []string
}

func (n *NoopClipboard) WriteText(text string) error {
	n.Writes = append(n.Writes, text)
	return nil
}
