package audio

import (
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/handy-ai/handy-engine/pkg/herr"
)

// LevelCallback receives a short, ordered sequence of floats in [0,1]
// for peak-meter UI on every frame. It must not block capture.
type LevelCallback func(levels []float32)

// CaptureEngine opens a microphone input device and streams resampled,
// mono 16kHz frames to its configured Resampler.
type CaptureEngine struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	res    *Resampler

	mu        sync.Mutex
	started   bool
	onLevel   LevelCallback
}

// NewCaptureEngine builds a capture engine that feeds frames to onFrame
// after resampling, and reports peak levels to onLevel (which may be
// nil).
func NewCaptureEngine(sourceRate, channels int, onFrame FrameCallback, onLevel LevelCallback) (*CaptureEngine, error) {
	res, err := NewResampler(sourceRate, channels, onFrame)
	if err != nil {
		return nil, herr.Wrap(herr.Audio, "building resampler", err)
	}
	return &CaptureEngine{res: res, onLevel: onLevel}, nil
}

// Open opens the given device name (empty for the platform default),
// failing with a herr.Audio error if the device is missing or
// unsupported.
func (c *CaptureEngine) Open(deviceName string, sourceRate, channels int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return herr.Wrap(herr.Audio, "initializing audio context", err).WithSuggestion("check that an audio backend is available")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sourceRate)
	if deviceName != "" {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			mctx.Uninit()
			return herr.Wrap(herr.Audio, "enumerating capture devices", err)
		}
		for i := range infos {
			if infos[i].Name() == deviceName {
				deviceConfig.Capture.DeviceID = infos[i].ID.Pointer()
			}
		}
		if deviceConfig.Capture.DeviceID == nil {
			mctx.Uninit()
			return herr.ErrDeviceOpen.WithDetails(fmt.Sprintf("device=%q: not found", deviceName))
		}
	}

	onData := func(_, input []byte, frameCount uint32) {
		samples := bytesToFloat32(input)
		c.res.Push(samples)
		if c.onLevel != nil {
			c.onLevel(peakLevels(samples, channels))
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		mctx.Uninit()
		return herr.ErrDeviceOpen.WithDetails(fmt.Sprintf("device=%q: %v", deviceName, err))
	}

	c.mctx = mctx
	c.device = device
	return nil
}

// Start begins delivering frames. Idempotent if already started.
func (c *CaptureEngine) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if c.device == nil {
		return herr.ErrDeviceOpen.WithDetails("Start called before Open")
	}
	if err := c.device.Start(); err != nil {
		return herr.Wrap(herr.Audio, "starting capture device", err)
	}
	c.started = true
	return nil
}

// Stop flushes any buffered trailing samples through the resampler and
// marks the engine stopped; it does not close the device.
func (c *CaptureEngine) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res.Flush()
	c.started = false
	if c.device != nil {
		c.device.Stop()
	}
}

// Close releases the OS audio stream.
func (c *CaptureEngine) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	if c.mctx != nil {
		c.mctx.Uninit()
		c.mctx = nil
	}
	c.started = false
}

func bytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// peakLevels reduces a block of interleaved samples to a short ordered
// sequence of per-channel peak levels in [0,1], for the level-meter UI.
func peakLevels(samples []float32, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	peaks := make([]float32, channels)
	for i, s := range samples {
		a := s
		if a < 0 {
			a = -a
		}
		if a > 1 {
			a = 1
		}
		c := i % channels
		if a > peaks[c] {
			peaks[c] = a
		}
	}
	return peaks
}
