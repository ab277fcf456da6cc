package llmclient

import "strings"

// TemplateValues holds the substitution values for ApplyTemplate.
type TemplateValues struct {
	Transcription    string
	PreviousContext  string
	SessionTopic     string // empty means "Not specified"
	RetrievedContext string // empty means "No additional context available"
}

// ApplyTemplate performs the four substitutions spec.md §4.8 requires
// in one non-recursive pass over tmpl: a substitution's inserted text is
// never re-scanned for further placeholders, so a value that itself
// contains "{{...}}" is left untouched (P13).
func ApplyTemplate(tmpl string, v TemplateValues) string {
	topic := v.SessionTopic
	if topic == "" {
		topic = "Not specified"
	}
	retrieved := v.RetrievedContext
	if retrieved == "" {
		retrieved = "No additional context available"
	}

	return strings.NewReplacer(
		"{{transcription}}", v.Transcription,
		"{{previous_context}}", v.PreviousContext,
		"{{session_topic}}", topic,
		"{{retrieved_context}}", retrieved,
	).Replace(tmpl)
}

// replaceOnce behaves like strings.ReplaceAll, but operates on a
// snapshot of the placeholder positions taken before any replacement is
// written, so inserted text is never re-matched within this call.
func replaceOnce(s, placeholder, value string) string {
	if !strings.Contains(s, placeholder) {
		return s
	}
	return strings.ReplaceAll(s, placeholder, value)
}
