package postprocess

import (
	"context"
	"errors"
	"testing"

	"github.com/handy-ai/handy-engine/pkg/config"
	"github.com/handy-ai/handy-engine/pkg/llmclient"
)

type fakeCompleter struct {
	out string
	err error
}

func (f *fakeCompleter) Complete(context.Context, []llmclient.ChatMessage) (string, error) {
	return f.out, f.err
}

func TestRunSkipsLLMWhenLanguageIsChineseVariant(t *testing.T) {
	p := NewPipeline(&fakeCompleter{out: "should not be used"}, nil)
	res := p.Run(context.Background(), "hello", "zh-Hans", true, "some prompt")
	// Conversion of already-simplified-looking ASCII text is a no-op in
	// practice, but the branch taken must be variant conversion, not LLM.
	if res.PromptUsed != "" {
		t.Fatalf("expected no LLM prompt used on Chinese-variant branch, got %q", res.PromptUsed)
	}
}

func TestRunUsesLLMWhenEnabledAndConfigured(t *testing.T) {
	p := NewPipeline(&fakeCompleter{out: "rewritten text"}, nil)
	res := p.Run(context.Background(), "raw text", "en", true, "rewrite: ${output}")
	if res.FinalText() != "rewritten text" {
		t.Fatalf("expected rewritten text, got %q", res.FinalText())
	}
	if res.PromptUsed != "rewrite: ${output}" {
		t.Fatalf("expected prompt recorded, got %q", res.PromptUsed)
	}
}

func TestRunFallsBackToRawTextOnLLMError(t *testing.T) {
	p := NewPipeline(&fakeCompleter{err: errors.New("network down")}, nil)
	res := p.Run(context.Background(), "raw text", "en", true, "rewrite: ${output}")
	if res.FinalText() != "raw text" {
		t.Fatalf("expected fallback to raw text, got %q", res.FinalText())
	}
}

func TestRunSkipsLLMWhenDisabled(t *testing.T) {
	p := NewPipeline(&fakeCompleter{out: "should not appear"}, nil)
	res := p.Run(context.Background(), "raw text", "en", false, "rewrite: ${output}")
	if res.FinalText() != "raw text" {
		t.Fatalf("expected raw text when post-processing disabled, got %q", res.FinalText())
	}
}

func TestRunSkipsLLMWhenPromptEmpty(t *testing.T) {
	p := NewPipeline(&fakeCompleter{out: "should not appear"}, nil)
	res := p.Run(context.Background(), "raw text", "en", true, "   ")
	if res.FinalText() != "raw text" {
		t.Fatalf("expected raw text when prompt empty, got %q", res.FinalText())
	}
}

func TestDispatchNoneStillHonorsCopyToClipboard(t *testing.T) {
	paster := &NoopPaster{}
	clip := &NoopClipboard{}
	err := Dispatch(context.Background(), paster, clip, "hello", config.PasteNone, 50, config.ClipboardCopyToClipboard)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(clip.Writes) != 1 || clip.Writes[0] != "hello" {
		t.Fatalf("expected clipboard write even with PasteNone, got %v", clip.Writes)
	}
	if len(paster.Calls) != 0 {
		t.Fatalf("expected no paste call with PasteNone, got %v", paster.Calls)
	}
}

func TestDispatchCtrlVPastesAndSkipsClipboardWhenDontModify(t *testing.T) {
	paster := &NoopPaster{}
	clip := &NoopClipboard{}
	err := Dispatch(context.Background(), paster, clip, "hello", config.PasteCtrlV, 50, config.ClipboardDontModify)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(clip.Writes) != 0 {
		t.Fatalf("expected no clipboard write with DontModify, got %v", clip.Writes)
	}
	if len(paster.Calls) != 1 || paster.Calls[0] != "hello" {
		t.Fatalf("expected one paste call, got %v", paster.Calls)
	}
}
