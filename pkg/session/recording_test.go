package session

import "testing"

type fakeDevice struct {
	startCalls int
	stopCalls  int
	startErr   error
}

func (f *fakeDevice) Start() error {
	f.startCalls++
	return f.startErr
}

func (f *fakeDevice) Stop() {
	f.stopCalls++
}

type recordingMuteAudio struct {
	muted bool
}

func (a *recordingMuteAudio) Mute() error      { a.muted = true; return nil }
func (a *recordingMuteAudio) Unmute() error    { a.muted = false; return nil }
func (a *recordingMuteAudio) PlayStartSound() {}
func (a *recordingMuteAudio) PlayStopSound()  {}

func TestIsActiveListeningReflectsFanoutInstallation(t *testing.T) {
	m := NewRecordingManager(&fakeDevice{}, nil, nil, nil)
	if m.IsActiveListening() {
		t.Fatalf("expected not active listening before StartActiveListening")
	}
	if err := m.StartActiveListening(func([]float32) {}); err != nil {
		t.Fatalf("StartActiveListening: %v", err)
	}
	if !m.IsActiveListening() {
		t.Fatalf("expected active listening after StartActiveListening")
	}
	if err := m.StopActiveListening(); err != nil {
		t.Fatalf("StopActiveListening: %v", err)
	}
	if m.IsActiveListening() {
		t.Fatalf("expected not active listening after StopActiveListening")
	}
}

func TestRecordingExclusivity(t *testing.T) {
	mic := &fakeDevice{}
	m := NewRecordingManager(mic, nil, nil, nil)

	if ok := m.TryStartRecording("a"); !ok {
		t.Fatalf("expected first claim to succeed")
	}
	if ok := m.TryStartRecording("b"); ok {
		t.Fatalf("expected second claim to fail while a holds the recording")
	}

	buf, ok := m.StopRecording("a")
	if !ok {
		t.Fatalf("expected owner to stop its own recording")
	}
	if len(buf) == 0 {
		t.Fatalf("expected padded buffer")
	}

	if ok := m.TryStartRecording("b"); !ok {
		t.Fatalf("expected b to claim after a released")
	}
}

func TestStopRecordingRejectsNonOwner(t *testing.T) {
	m := NewRecordingManager(&fakeDevice{}, nil, nil, nil)
	m.TryStartRecording("a")
	if _, ok := m.StopRecording("b"); ok {
		t.Fatalf("expected non-owner stop to fail")
	}
}

func TestShortBufferPaddedTo125Seconds(t *testing.T) {
	m := NewRecordingManager(&fakeDevice{}, nil, nil, nil)
	m.TryStartRecording("a")
	m.PushSamples(make([]float32, 100))
	buf, ok := m.StopRecording("a")
	if !ok {
		t.Fatalf("expected stop to succeed")
	}
	const want = 20000 // 1.25s @ 16kHz
	if len(buf) != want {
		t.Fatalf("expected padded length %d, got %d", want, len(buf))
	}
}

func TestMuteSymmetryAcrossStartStop(t *testing.T) {
	sa := &recordingMuteAudio{}
	m := NewRecordingManager(&fakeDevice{}, nil, nil, sa)
	m.SetMuteWhileRecording(true)

	before := sa.muted
	m.TryStartRecording("a")
	if !m.DidMute() {
		t.Fatalf("expected did_mute to be set while recording with mute enabled")
	}
	m.StopRecording("a")
	if sa.muted != before {
		t.Fatalf("expected mute state symmetry after a completed start/stop cycle")
	}
	if m.DidMute() {
		t.Fatalf("expected did_mute cleared after stop")
	}
}

func TestMuteSymmetryAcrossCancel(t *testing.T) {
	sa := &recordingMuteAudio{}
	m := NewRecordingManager(&fakeDevice{}, nil, nil, sa)
	m.SetMuteWhileRecording(true)

	before := sa.muted
	m.TryStartRecording("a")
	m.CancelRecording()
	if sa.muted != before {
		t.Fatalf("expected mute state symmetry after cancel")
	}
	if m.DidMute() {
		t.Fatalf("expected did_mute cleared after cancel")
	}
}

func TestCancelRecordingDropsAccumulatedSamples(t *testing.T) {
	m := NewRecordingManager(&fakeDevice{}, nil, nil, nil)
	m.TryStartRecording("a")
	m.PushSamples([]float32{1, 2, 3})
	m.CancelRecording()

	if ok := m.TryStartRecording("b"); !ok {
		t.Fatalf("expected cancel to free the recording slot")
	}
	buf, _ := m.StopRecording("b")
	for _, s := range buf {
		if s != 0 {
			t.Fatalf("expected cancelled samples to be dropped, found non-zero sample")
		}
	}
}
