package audio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/handy-ai/handy-engine/pkg/herr"
)

// LoopbackSupport describes how (if at all) this platform can tap the
// system's own audio output.
type LoopbackSupport int

const (
	LoopbackNotSupported LoopbackSupport = iota
	LoopbackNative
	LoopbackRequiresVirtualDevice
)

// LoopbackSource taps the audio the OS is playing back, so a meeting
// app's remote participants can be transcribed alongside the local mic.
// It exposes the same frame-producing contract as CaptureEngine.
type LoopbackSource struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	res    *Resampler

	mu      sync.Mutex
	started bool
}

// ProbeLoopbackSupport enumerates playback devices via malgo and reports
// what level of loopback capture this machine supports. Native loopback
// capture (WASAPI monitor-style) isn't exposed identically across
// platforms by malgo, so a conservative default of
// RequiresVirtualDevice is returned whenever a playback device exists
// but no explicit monitor source can be identified; NotSupported is
// returned only when enumeration itself fails or no device exists.
func ProbeLoopbackSupport(mctx *malgo.AllocatedContext) (LoopbackSupport, error) {
	devices, err := mctx.Devices(malgo.Playback)
	if err != nil {
		return LoopbackNotSupported, herr.Wrap(herr.Audio, "enumerating playback devices", err)
	}
	if len(devices) == 0 {
		return LoopbackNotSupported, nil
	}
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name()), "monitor") {
			return LoopbackNative, nil
		}
	}
	return LoopbackRequiresVirtualDevice, nil
}

// NewLoopbackSource builds a loopback source that resamples captured
// system audio and feeds it to onFrame.
func NewLoopbackSource(sourceRate, channels int, onFrame FrameCallback) (*LoopbackSource, error) {
	res, err := NewResampler(sourceRate, channels, onFrame)
	if err != nil {
		return nil, herr.Wrap(herr.Audio, "building loopback resampler", err)
	}
	return &LoopbackSource{res: res}, nil
}

// Open opens a monitor/loopback-capable capture device. deviceID, when
// non-nil, selects a specific enumerated device (typically the virtual
// "monitor" source a supporting platform exposes); nil uses the
// platform default capture device, which on some platforms already is
// the loopback path.
func (l *LoopbackSource) Open(deviceID *malgo.DeviceID, sourceRate, channels int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return herr.Wrap(herr.Audio, "initializing loopback context", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Loopback)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sourceRate)
	if deviceID != nil {
		deviceConfig.Capture.DeviceID = deviceID.Pointer()
	}

	onData := func(_, input []byte, frameCount uint32) {
		l.res.Push(bytesToFloat32(input))
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		mctx.Uninit()
		return herr.ErrDeviceOpen.WithDetails(fmt.Sprintf("loopback device open failed: %v", err))
	}

	l.mctx = mctx
	l.device = device
	return nil
}

// Start begins delivering frames. Idempotent if already started.
func (l *LoopbackSource) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	if l.device == nil {
		return herr.ErrDeviceOpen.WithDetails("Start called before Open")
	}
	if err := l.device.Start(); err != nil {
		return herr.Wrap(herr.Audio, "starting loopback device", err)
	}
	l.started = true
	return nil
}

// Stop flushes trailing samples and stops delivery without closing the
// device.
func (l *LoopbackSource) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.res.Flush()
	l.started = false
	if l.device != nil {
		l.device.Stop()
	}
}

// Close releases the OS audio stream.
func (l *LoopbackSource) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.device != nil {
		l.device.Uninit()
		l.device = nil
	}
	if l.mctx != nil {
		l.mctx.Uninit()
		l.mctx = nil
	}
	l.started = false
}
