package audio

import (
	resample "github.com/tphakala/go-audio-resampler"
)

// TargetSampleRate is the engine's single internal sample rate; every
// source is converted to this rate before it reaches the VAD gate or the
// mixer.
const TargetSampleRate = 16000

// FrameSamples is 30ms of audio at TargetSampleRate, the granularity the
// VAD gate and diarizer operate on.
const FrameSamples = TargetSampleRate * 30 / 1000 // 480

// FrameCallback receives one 16kHz mono frame per call: FrameSamples
// samples from Push, or the shorter trailing remainder from Flush. It
// must not block.
type FrameCallback func(samples []float32)

// Resampler converts arbitrary-rate, possibly multi-channel, interleaved
// f32 audio into a steady stream of 16kHz mono frames, handling input
// chunks of any size without losing samples across calls.
type Resampler struct {
	sourceRate int
	channels   int
	inner      *resample.Resampler
	pending    []float32
	onFrame    FrameCallback
}

// NewResampler builds a Resampler for the given source rate and channel
// count, invoking onFrame with every complete 30ms frame it produces.
func NewResampler(sourceRate, channels int, onFrame FrameCallback) (*Resampler, error) {
	inner, err := resample.NewResampler(sourceRate, TargetSampleRate)
	if err != nil {
		return nil, err
	}
	return &Resampler{
		sourceRate: sourceRate,
		channels:   channels,
		inner:      inner,
		onFrame:    onFrame,
	}, nil
}

// Push accepts interleaved f32 samples at the resampler's configured
// source rate and channel count, collapses them to mono, resamples to
// 16kHz, and delivers complete FrameSamples-sized frames to onFrame as
// they accumulate. A trailing partial frame is buffered until the next
// call rather than delivered early or dropped.
func (r *Resampler) Push(interleaved []float32) {
	mono := collapseToMono(interleaved, r.channels)

	var resampled []float32
	if r.sourceRate == TargetSampleRate {
		resampled = mono
	} else {
		resampled = r.inner.Resample(mono)
	}

	r.pending = append(r.pending, resampled...)
	for len(r.pending) >= FrameSamples {
		frame := make([]float32, FrameSamples)
		copy(frame, r.pending[:FrameSamples])
		r.pending = r.pending[FrameSamples:]
		r.onFrame(frame)
	}
}

// Flush delivers any buffered trailing samples as a final, possibly
// short, frame. Call when the source closes.
func (r *Resampler) Flush() {
	if len(r.pending) == 0 {
		return
	}
	frame := r.pending
	r.pending = nil
	r.onFrame(frame)
}

// collapseToMono averages interleaved channels down to one channel. A
// channels value of 1 returns the input unchanged.
func collapseToMono(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += interleaved[base+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
