// Package transcribe implements the transcription engine contract (C6):
// an f32-buffer-in, text-out model with lazy load, idle-unload
// lifecycle management, and fuzzy custom-word correction.
package transcribe

import (
	"context"

	"github.com/handy-ai/handy-engine/pkg/herr"
)

// Engine is the underlying model contract. Implementations may be a
// local whisper.cpp-style binding or a remote HTTP client; this module
// ships two remote HTTP implementations (DeepgramEngine and GroqEngine
// in remote.go) plus the lifecycle/correction wrapper, and no local
// model binding.
type Engine interface {
	// Transcribe decodes samples (16kHz mono f32) into text, using
	// translateToEnglish to select between the model's transcription
	// and translation tasks.
	Transcribe(ctx context.Context, samples []float32, language string, translateToEnglish bool) (string, error)
	Load(ctx context.Context) error
	Unload(ctx context.Context) error
}

// IdleTimeout is the configurable idle-unload timeout of spec.md §4.5.
type IdleTimeout int

const (
	IdleNever IdleTimeout = iota
	IdleImmediate
	Idle2Min
	Idle5Min
	Idle10Min
	Idle15Min
	Idle1Hour
)

// Duration returns the wall-clock idle timeout, or 0 for Never/
// Immediate (handled specially by ManagedEngine).
func (t IdleTimeout) Duration() durationSeconds {
	switch t {
	case Idle2Min:
		return 120
	case Idle5Min:
		return 300
	case Idle10Min:
		return 600
	case Idle15Min:
		return 900
	case Idle1Hour:
		return 3600
	default:
		return 0
	}
}

type durationSeconds = int64

var (
	// ErrModelNotLoaded mirrors spec.md's ModelNotLoaded error.
	ErrModelNotLoaded = herr.ErrModelNotLoaded
	// ErrDecodeFailed mirrors spec.md's DecodeFailed error.
	ErrDecodeFailed = herr.ErrDecodeFailed
	// ErrCancelled mirrors spec.md's Cancelled error; the session
	// state machine is the only consumer that swallows this silently.
	ErrCancelled = herr.ErrCancelled
)
