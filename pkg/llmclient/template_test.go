package llmclient

import (
	"strings"
	"testing"
)

func TestApplyTemplateSinglePassNoSelfRematch(t *testing.T) {
	out := ApplyTemplate("{{transcription}}", TemplateValues{
		Transcription: "the weather is nice",
	})
	if out != "the weather is nice" {
		t.Fatalf("got %q", out)
	}

	out = ApplyTemplate("{{transcription}} / {{session_topic}}", TemplateValues{
		Transcription: "{{session_topic}}",
		SessionTopic:  "standup",
	})
	if out != "{{session_topic}} / standup" {
		t.Fatalf("inserted placeholder was re-matched: got %q", out)
	}
}

func TestApplyTemplateDefaults(t *testing.T) {
	out := ApplyTemplate("topic={{session_topic}} ctx={{retrieved_context}}", TemplateValues{})
	if !strings.Contains(out, "Not specified") {
		t.Fatalf("expected default topic fallback, got %q", out)
	}
	if !strings.Contains(out, "No additional context available") {
		t.Fatalf("expected default retrieved-context fallback, got %q", out)
	}
}

func TestApplyTemplateAllFourSubstitutions(t *testing.T) {
	out := ApplyTemplate(
		"T:{{transcription}} P:{{previous_context}} S:{{session_topic}} R:{{retrieved_context}}",
		TemplateValues{
			Transcription:    "hello",
			PreviousContext:  "prior insight",
			SessionTopic:     "standup",
			RetrievedContext: "doc snippet",
		},
	)
	want := "T:hello P:prior insight S:standup R:doc snippet"
	if out != want {
		t.Fatalf("got %q want %q", out, want)
	}
}
