// Package config holds the typed Settings surface described in spec.md
// §6 and loads it with viper. The engine never writes this file itself;
// persistence is an external collaborator's responsibility.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type RetentionPolicy string

const (
	RetentionNever         RetentionPolicy = "never"
	RetentionPreserveLimit RetentionPolicy = "preserve_limit"
	RetentionDays3         RetentionPolicy = "days3"
	RetentionWeeks2        RetentionPolicy = "weeks2"
	RetentionMonths3       RetentionPolicy = "months3"
)

type PasteMethod string

const (
	PasteCtrlV      PasteMethod = "ctrl_v"
	PasteDirect     PasteMethod = "direct"
	PasteNone       PasteMethod = "none"
	PasteShiftIns   PasteMethod = "shift_insert"
	PasteCtrlShiftV PasteMethod = "ctrl_shift_v"
)

type ClipboardHandling string

const (
	ClipboardDontModify      ClipboardHandling = "dont_modify"
	ClipboardCopyToClipboard ClipboardHandling = "copy_to_clipboard"
)

type RecordingMode string

const (
	ModeAlwaysOn       RecordingMode = "always_on"
	ModeOnDemand       RecordingMode = "on_demand"
	ModeActiveListening RecordingMode = "active_listening"
)

// ActiveListening groups the active_listening.* settings keys.
type ActiveListening struct {
	Enabled             bool
	SegmentDurationSecs int
	OllamaBaseURL       string
	OllamaModel         string
	ContextWindowSize   int
	AudioSourceType     string
	MixRatio            float64
	Prompts             []string
	SelectedPromptID    string
}

// KnowledgeBase groups the knowledge_base.* settings keys.
type KnowledgeBase struct {
	Enabled                  bool
	AutoIndexTranscriptions  bool
	EmbeddingModel           string
	TopK                     int
	SimilarityThreshold      float64
	UseInActiveListening     bool
}

// PostProcessPrompt is one named entry in the post-process prompt list
// (spec.md §6 `post_process_prompts[]`), selected by ID via
// `PostProcessSelectedPromptID`.
type PostProcessPrompt struct {
	ID     string
	Name   string
	Prompt string
}

// QuickResponseSetting mirrors the QuickResponse data model entry.
type QuickResponseSetting struct {
	ID             string
	Name           string
	TriggerPhrases []string
	Category       string
	ResponseTmpl   string
	Enabled        bool
}

// Suggestions groups the suggestions.* settings keys.
type Suggestions struct {
	Enabled                bool
	QuickResponses         []QuickResponseSetting
	RAGSuggestionsEnabled  bool
	LLMSuggestionsEnabled  bool
	MaxSuggestions         int
	MinConfidence          float64
	AutoDismissOnCopy      bool
	DisplayDurationSeconds int
}

// Settings is the full typed configuration surface of spec.md §6.
type Settings struct {
	AlwaysOnMicrophone     bool
	MuteWhileRecording     bool
	SelectedLanguage       string
	TranslateToEnglish     bool
	WordCorrectionThreshold float64

	HistoryLimit             int
	RecordingRetentionPeriod RetentionPolicy
	RecordingsDir            string

	PasteMethod       PasteMethod
	PasteDelayMs      int
	ClipboardHandling ClipboardHandling

	PostProcessEnabled         bool
	PostProcessProviderID      string
	PostProcessModels          map[string]string
	PostProcessPrompts          []PostProcessPrompt
	PostProcessSelectedPromptID string

	ActiveListening ActiveListening
	KnowledgeBase   KnowledgeBase
	Suggestions     Suggestions
}

// Default returns the engine's documented defaults.
func Default() Settings {
	return Settings{
		MuteWhileRecording:      false,
		SelectedLanguage:        "auto",
		WordCorrectionThreshold: 0.18,
		HistoryLimit:            100,
		RecordingRetentionPeriod: RetentionPreserveLimit,
		RecordingsDir:           "recordings",
		PasteMethod:             PasteCtrlV,
		PasteDelayMs:            50,
		ClipboardHandling:       ClipboardDontModify,
		PostProcessModels:       map[string]string{},
		ActiveListening: ActiveListening{
			SegmentDurationSecs: 15,
			ContextWindowSize:   3,
			MixRatio:            0.3,
		},
		KnowledgeBase: KnowledgeBase{
			TopK:                3,
			SimilarityThreshold: 0.5,
		},
		Suggestions: Suggestions{
			MaxSuggestions:         3,
			MinConfidence:          0.5,
			DisplayDurationSeconds: 8,
		},
	}
}

// Load reads a KV settings file (YAML/JSON/TOML, auto-detected by
// extension) via viper and unmarshals it into Settings on top of
// Default(). HANDY_-prefixed environment variables override only keys
// the file itself sets; with an empty path, Default() is returned as is
// and no environment variables are read.
func Load(path string) (Settings, error) {
	s := Default()

	v := viper.New()
	v.SetEnvPrefix("HANDY")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return s, fmt.Errorf("reading config %q: %w", path, err)
		}
		if err := v.Unmarshal(&s); err != nil {
			return s, fmt.Errorf("decoding config %q: %w", path, err)
		}
	}

	return s, nil
}

// SegmentDuration returns ActiveListening.SegmentDurationSecs as a
// time.Duration, the form the session state machine needs.
func (a ActiveListening) SegmentDuration() time.Duration {
	return time.Duration(a.SegmentDurationSecs) * time.Second
}
