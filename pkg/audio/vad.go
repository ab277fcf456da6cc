package audio

import (
	speech "github.com/streamer45/silero-vad-go/speech"
)

// ProbabilityModel returns a speech probability in [0,1] for one 30ms
// (FrameSamples) frame of 16kHz mono audio. Gate is built against this
// narrow interface so it can be tested without loading the real ONNX
// model.
type ProbabilityModel interface {
	Predict(frame []float32) (float32, error)
	Close() error
}

// SileroModel adapts github.com/streamer45/silero-vad-go's detector to
// ProbabilityModel.
type SileroModel struct {
	detector *speech.Detector
}

// NewSileroModel loads the ONNX VAD model from modelPath.
func NewSileroModel(modelPath string) (*SileroModel, error) {
	d, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            modelPath,
		SampleRate:           TargetSampleRate,
		WindowSize:           FrameSamples,
		Threshold:            0.5,
		MinSilenceDurationMs: 0,
		SpeechPadMs:          0,
	})
	if err != nil {
		return nil, err
	}
	return &SileroModel{detector: d}, nil
}

func (m *SileroModel) Predict(frame []float32) (float32, error) {
	return m.detector.Predict(frame)
}

func (m *SileroModel) Close() error {
	return m.detector.Destroy()
}

// Edge describes a transition the Gate detected.
type Edge int

const (
	NoEdge Edge = iota
	EdgeStart
	EdgeEnd
)

// Gate wraps a neural VAD with hangover smoothing: it requires nOn
// consecutive speech-probability frames above the threshold to confirm
// an onset, and nOff consecutive frames below it to confirm an end, per
// spec.md §4.2 (N_on=15, N_off=15 frames of 30ms, lookback K=2).
type Gate struct {
	model     ProbabilityModel
	threshold float32
	nOn       int
	nOff      int
	lookback  int

	speaking   bool
	onStreak   int
	offStreak  int
	preSpeech  [][]float32 // ring of up to `lookback` frames immediately preceding a candidate onset
	confirming [][]float32 // every frame of the in-progress onset streak, frozen once onStreak starts
}

// NewGate builds a Gate with spec.md's documented defaults.
func NewGate(model ProbabilityModel) *Gate {
	return &Gate{
		model:     model,
		threshold: 0.5,
		nOn:       15,
		nOff:      15,
		lookback:  2,
	}
}

// SetThreshold overrides the speech-probability threshold.
func (g *Gate) SetThreshold(t float32) {
	g.threshold = t
}

// Process classifies one FrameSamples-sized frame. When a speech onset
// is confirmed, Process returns (frames, EdgeStart, nil) where frames is
// the lookback buffer followed by every frame of the confirmed onset
// streak, so the consumer never loses any of the onset. When an end is
// confirmed, it returns (nil, EdgeEnd, nil). Otherwise it returns
// (nil, NoEdge, nil) while still-confirming or steady-state, and the
// raw frame is available via the returned []float32 only on a start
// edge — callers in Active Listening mode should ignore the edge
// entirely and push frames unconditionally, per spec.md §4.2.
func (g *Gate) Process(frame []float32) ([]float32, Edge, error) {
	prob, err := g.model.Predict(frame)
	if err != nil {
		return nil, NoEdge, err
	}

	isSpeechFrame := prob >= g.threshold

	if !g.speaking {
		if isSpeechFrame {
			g.appendConfirming(frame)
			g.onStreak++
			g.offStreak = 0
			if g.onStreak >= g.nOn {
				g.speaking = true
				out := g.confirmOnset()
				return out, EdgeStart, nil
			}
			return nil, NoEdge, nil
		}
		// Not a speech frame: any in-progress onset streak is aborted,
		// and the pre-speech ring resumes tracking steady silence.
		g.onStreak = 0
		g.confirming = nil
		g.bufferLookback(frame)
		return nil, NoEdge, nil
	}

	// Currently speaking.
	if isSpeechFrame {
		g.offStreak = 0
		return nil, NoEdge, nil
	}

	g.offStreak++
	if g.offStreak >= g.nOff {
		g.speaking = false
		g.offStreak = 0
		return nil, EdgeEnd, nil
	}
	return nil, NoEdge, nil
}

// IsSpeaking reports the gate's current confirmed state.
func (g *Gate) IsSpeaking() bool {
	return g.speaking
}

// Reset restores the gate to its initial, non-speaking state.
func (g *Gate) Reset() {
	g.speaking = false
	g.onStreak = 0
	g.offStreak = 0
	g.preSpeech = nil
	g.confirming = nil
}

// bufferLookback tracks the last `lookback` frames of steady silence,
// i.e. frames seen while no onset streak is in progress. It is never
// called once a candidate onset streak has started.
func (g *Gate) bufferLookback(frame []float32) {
	cp := make([]float32, len(frame))
	copy(cp, frame)
	g.preSpeech = append(g.preSpeech, cp)
	if len(g.preSpeech) > g.lookback {
		g.preSpeech = g.preSpeech[len(g.preSpeech)-g.lookback:]
	}
}

// appendConfirming grows the in-progress onset streak's frame buffer;
// every frame counted toward onStreak is kept, not just the last K.
func (g *Gate) appendConfirming(frame []float32) {
	cp := make([]float32, len(frame))
	copy(cp, frame)
	g.confirming = append(g.confirming, cp)
}

// confirmOnset returns the frozen pre-speech lookback followed by the
// full confirmed onset run, and clears both buffers.
func (g *Gate) confirmOnset() []float32 {
	var out []float32
	for _, f := range g.preSpeech {
		out = append(out, f...)
	}
	for _, f := range g.confirming {
		out = append(out, f...)
	}
	g.preSpeech = nil
	g.confirming = nil
	g.onStreak = 0
	return out
}
