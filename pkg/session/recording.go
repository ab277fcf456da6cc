// Package session implements the recording manager (C5) and the three
// independent session state machines (C8) that share it: Push-to-Talk
// Transcribe, Ask AI, and Active Listening.
package session

import (
	"sync"

	"github.com/handy-ai/handy-engine/pkg/audio"
	"github.com/handy-ai/handy-engine/pkg/herr"
)

// Mode is the recording manager's top-level mode, per spec.md §4.4.
type Mode int

const (
	ModeAlwaysOn Mode = iota
	ModeOnDemand
	ModeActiveListening
)

// SystemAudio is the injected mute-policy collaborator; the concrete
// implementation is OS-specific and lives outside this module.
type SystemAudio interface {
	Mute() error
	Unmute() error
	PlayStartSound()
	PlayStopSound()
}

// NoopSystemAudio is a SystemAudio that does nothing, for tests and for
// platforms without sound-cue support.
type NoopSystemAudio struct{}

func (NoopSystemAudio) Mute() error      { return nil }
func (NoopSystemAudio) Unmute() error    { return nil }
func (NoopSystemAudio) PlayStartSound() {}
func (NoopSystemAudio) PlayStopSound()  {}

// device is the minimal capture-contract surface the manager drives;
// both CaptureEngine and LoopbackSource satisfy it trivially via thin
// adapters in cmd/ wiring.
type device interface {
	Start() error
	Stop()
}

// SampleCallback fans samples out to a consumer installed while in
// ActiveListening mode (spec.md §4.4).
type SampleCallback func(samples []float32)

// RecordingManager owns capture + loopback + mixer, and implements the
// {AlwaysOn, OnDemand, ActiveListening} mode state machine plus the
// recording-ownership and mute-policy invariants of spec.md §4.4.
//
// Each field group has its own mutex. Nesting, as the code takes them:
// modeMu is held while the device is opened or closed (openMu), and
// TryStartRecording holds recMu while it opens the device (openMu) and
// applies mute (muteMu, then openMu). No path takes two of these in the
// opposite direction. Device Start/Stop runs with openMu held, and also
// with modeMu or recMu held when reached from the mode transitions or
// from TryStartRecording. stateMu is not used. PushSamples, the audio
// callback path, takes only fanoutMu and accumMu.
type RecordingManager struct {
	stateMu sync.Mutex
	modeMu  sync.Mutex
	openMu  sync.Mutex
	recMu   sync.Mutex
	muteMu  sync.Mutex

	mode           Mode
	previousMode   Mode
	isOpen         bool
	isRecording    bool
	didMute        bool
	ownerBinding   string

	mic      device
	loopback device
	mixer    *audio.SharedMixer
	sysAudio SystemAudio

	muteWhileRecording bool

	fanoutMu sync.Mutex
	fanout   SampleCallback

	accumMu sync.Mutex
	accum   []float32
}

// NewRecordingManager builds a manager in OnDemand mode.
func NewRecordingManager(mic, loopback device, mixer *audio.SharedMixer, sysAudio SystemAudio) *RecordingManager {
	if sysAudio == nil {
		sysAudio = NoopSystemAudio{}
	}
	return &RecordingManager{
		mode:     ModeOnDemand,
		mic:      mic,
		loopback: loopback,
		mixer:    mixer,
		sysAudio: sysAudio,
	}
}

// SetMuteWhileRecording toggles the mute-while-recording setting.
func (m *RecordingManager) SetMuteWhileRecording(enabled bool) {
	m.muteMu.Lock()
	defer m.muteMu.Unlock()
	m.muteWhileRecording = enabled
}

// SetMode transitions between AlwaysOn and OnDemand. Transitioning into
// or out of ActiveListening uses StartActiveListening/
// StopActiveListening instead, since those also manage the device and
// sample fan-out.
func (m *RecordingManager) SetMode(mode Mode) error {
	if mode == ModeActiveListening {
		return herr.New(herr.State, "use StartActiveListening to enter ActiveListening mode")
	}
	m.modeMu.Lock()
	defer m.modeMu.Unlock()
	if m.mode == ModeActiveListening {
		return herr.New(herr.State, "cannot change mode while ActiveListening is active")
	}
	m.mode = mode
	if mode == ModeAlwaysOn {
		return m.openDevice()
	}
	return nil
}

// StartActiveListening opens the device (if not already open), disables
// VAD gating for the duration, and installs the given sample fan-out.
func (m *RecordingManager) StartActiveListening(onSample SampleCallback) error {
	m.modeMu.Lock()
	defer m.modeMu.Unlock()
	if m.mode == ModeActiveListening {
		return herr.New(herr.State, "already in ActiveListening mode")
	}
	m.previousMode = m.mode
	m.mode = ModeActiveListening

	m.fanoutMu.Lock()
	m.fanout = onSample
	m.fanoutMu.Unlock()

	return m.openDevice()
}

// StopActiveListening returns to the mode that was active before
// ActiveListening started.
func (m *RecordingManager) StopActiveListening() error {
	m.modeMu.Lock()
	defer m.modeMu.Unlock()
	if m.mode != ModeActiveListening {
		return herr.New(herr.State, "not in ActiveListening mode")
	}
	m.fanoutMu.Lock()
	m.fanout = nil
	m.fanoutMu.Unlock()

	m.mode = m.previousMode
	if m.mode == ModeOnDemand {
		return m.closeDevice()
	}
	return nil
}

// PushSamples is called from the audio callback path (or its resampled
// downstream) with mixed, 16kHz mono samples. In ActiveListening mode it
// fans out unconditionally; otherwise it accumulates only what the
// caller has already gated through the VAD (gating happens upstream of
// this call, per spec.md §4.2).
func (m *RecordingManager) PushSamples(samples []float32) {
	m.fanoutMu.Lock()
	cb := m.fanout
	m.fanoutMu.Unlock()

	if cb != nil {
		cb(samples)
		return
	}

	m.accumMu.Lock()
	m.accum = append(m.accum, samples...)
	m.accumMu.Unlock()
}

// TryStartRecording attempts to claim exclusive ownership of the active
// recording for bindingID. It never pre-empts a running recording
// (invariant R_REC1 / P10).
func (m *RecordingManager) TryStartRecording(bindingID string) bool {
	m.recMu.Lock()
	defer m.recMu.Unlock()
	if m.isRecording {
		return false
	}
	m.isRecording = true
	m.ownerBinding = bindingID

	m.openMu.Lock()
	alreadyOpen := m.isOpen
	m.openMu.Unlock()

	if !alreadyOpen {
		_ = m.openDevice()
	}

	m.sysAudio.PlayStartSound()
	m.applyMute()
	return true
}

// StopRecording returns the accumulated buffer only if bindingID owns
// the active recording. Short buffers are right-padded with zeros to
// 1.25s so the transcription model sees a minimum context window.
func (m *RecordingManager) StopRecording(bindingID string) ([]float32, bool) {
	m.recMu.Lock()
	if !m.isRecording || m.ownerBinding != bindingID {
		m.recMu.Unlock()
		return nil, false
	}
	m.isRecording = false
	m.ownerBinding = ""
	m.recMu.Unlock()

	m.unapplyMute()
	m.sysAudio.PlayStopSound()

	m.modeMu.Lock()
	onDemand := m.mode == ModeOnDemand
	m.modeMu.Unlock()
	if onDemand {
		_ = m.closeDevice()
	}

	m.accumMu.Lock()
	buf := m.accum
	m.accum = nil
	m.accumMu.Unlock()

	const minSamples = audio.TargetSampleRate * 5 / 4 // 1.25s
	if len(buf) < minSamples {
		padded := make([]float32, minSamples)
		copy(padded, buf)
		buf = padded
	}
	return buf, true
}

// CancelRecording drops accumulated samples without surfacing them and
// returns to Idle, unconditionally unmuting (so did_mute is always
// cleared on cancel, per spec.md §4.4).
func (m *RecordingManager) CancelRecording() {
	m.recMu.Lock()
	wasRecording := m.isRecording
	m.isRecording = false
	m.ownerBinding = ""
	m.recMu.Unlock()

	m.unapplyMute()
	if wasRecording {
		m.sysAudio.PlayStopSound()
	}

	m.modeMu.Lock()
	onDemand := m.mode == ModeOnDemand
	m.modeMu.Unlock()
	if onDemand {
		_ = m.closeDevice()
	}

	m.accumMu.Lock()
	m.accum = nil
	m.accumMu.Unlock()
}

// IsRecording reports whether any binding currently owns the recording.
func (m *RecordingManager) IsRecording() bool {
	m.recMu.Lock()
	defer m.recMu.Unlock()
	return m.isRecording
}

// IsActiveListening reports whether a sample fan-out is currently
// installed (i.e. ActiveListening is running). Capture callbacks use
// this to decide whether to VAD-gate a frame before calling
// PushSamples: ActiveListening wants every frame unconditionally, all
// other modes want only frames the VAD has confirmed as speech.
func (m *RecordingManager) IsActiveListening() bool {
	m.fanoutMu.Lock()
	defer m.fanoutMu.Unlock()
	return m.fanout != nil
}

// DidMute reports whether this manager currently believes it has muted
// system output (for P11's symmetry property).
func (m *RecordingManager) DidMute() bool {
	m.muteMu.Lock()
	defer m.muteMu.Unlock()
	return m.didMute
}

func (m *RecordingManager) applyMute() {
	m.muteMu.Lock()
	defer m.muteMu.Unlock()
	if !m.muteWhileRecording {
		return
	}
	m.openMu.Lock()
	open := m.isOpen
	m.openMu.Unlock()
	if !open {
		return
	}
	if err := m.sysAudio.Mute(); err == nil {
		m.didMute = true
	}
}

func (m *RecordingManager) unapplyMute() {
	m.muteMu.Lock()
	defer m.muteMu.Unlock()
	if !m.didMute {
		return
	}
	_ = m.sysAudio.Unmute()
	m.didMute = false
}

func (m *RecordingManager) openDevice() error {
	m.openMu.Lock()
	defer m.openMu.Unlock()
	if m.isOpen {
		return nil
	}
	if m.mic != nil {
		if err := m.mic.Start(); err != nil {
			return herr.Wrap(herr.Audio, "starting microphone", err)
		}
	}
	if m.loopback != nil {
		if err := m.loopback.Start(); err != nil {
			return herr.Wrap(herr.Audio, "starting loopback", err)
		}
	}
	m.isOpen = true
	return nil
}

func (m *RecordingManager) closeDevice() error {
	m.openMu.Lock()
	defer m.openMu.Unlock()
	if !m.isOpen {
		return nil
	}
	if m.mic != nil {
		m.mic.Stop()
	}
	if m.loopback != nil {
		m.loopback.Stop()
	}
	m.isOpen = false
	return nil
}
