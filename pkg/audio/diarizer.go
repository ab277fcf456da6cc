package audio

import "math"

// DiarizerConfig mirrors the tunables of the energy-based speaker-change
// detector, defaults per spec.md §4.6.
type DiarizerConfig struct {
	SilenceThreshold       float64
	MinSilenceDurationMs   int
	EnergyChangeThreshold  float64
	SampleRate             int
	HistoryWindowSize      int
}

// DefaultDiarizerConfig returns spec.md's documented defaults.
func DefaultDiarizerConfig() DiarizerConfig {
	return DiarizerConfig{
		SilenceThreshold:      0.02,
		MinSilenceDurationMs:  500,
		EnergyChangeThreshold: 2.0,
		SampleRate:            TargetSampleRate,
		HistoryWindowSize:     20,
	}
}

// SpeakerChange is emitted when the diarizer decides the floor has
// switched speakers.
type SpeakerChange struct {
	NewSpeaker      int
	PreviousSpeaker int
	SampleOffset    int64
}

// EnergyDiarizer is a stateful, energy/silence based two-speaker
// detector. It never identifies speakers beyond toggling between 0
// ("You") and 1 ("Speaker 2"), per spec.md's non-goals.
type EnergyDiarizer struct {
	cfg DiarizerConfig

	currentSpeaker      int
	speakersObserved    int
	totalSamples        int64
	samplesSinceChange  int64
	silenceFrameCount   int64
	currentSpeakerEnergy float64
	primaryBaseline     *float64
	energyHistory       []float64
}

// NewEnergyDiarizer builds a diarizer with the given config.
func NewEnergyDiarizer(cfg DiarizerConfig) *EnergyDiarizer {
	return &EnergyDiarizer{cfg: cfg, speakersObserved: 1}
}

// SpeakerLabel returns the human-facing label for a speaker id, per
// spec.md's "You" / "Speaker 2" toggle.
func SpeakerLabel(speakerID int) string {
	if speakerID == 0 {
		return "You"
	}
	return "Speaker 2"
}

func calculateRMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func (d *EnergyDiarizer) isSilence(rms float64) bool {
	return rms < d.cfg.SilenceThreshold
}

func (d *EnergyDiarizer) minSilenceSamples() int64 {
	return int64(d.cfg.SampleRate) * int64(d.cfg.MinSilenceDurationMs) / 1000
}

func (d *EnergyDiarizer) pushHistory(rms float64) {
	d.energyHistory = append(d.energyHistory, rms)
	if len(d.energyHistory) > d.cfg.HistoryWindowSize {
		d.energyHistory = d.energyHistory[len(d.energyHistory)-d.cfg.HistoryWindowSize:]
	}
}

func (d *EnergyDiarizer) energySuggestsSpeakerChange(rms float64) bool {
	ratioAgainst := func(base float64) bool {
		if base <= 0 {
			return false
		}
		ratio := rms / base
		return ratio > d.cfg.EnergyChangeThreshold || ratio < 1/d.cfg.EnergyChangeThreshold
	}
	if d.primaryBaseline != nil && ratioAgainst(*d.primaryBaseline) {
		return true
	}
	return ratioAgainst(d.currentSpeakerEnergy)
}

// ProcessFrame accepts one 30ms (FrameSamples) frame and returns a
// SpeakerChange when the detector decides the floor has switched.
func (d *EnergyDiarizer) ProcessFrame(frame []float32) *SpeakerChange {
	rms := calculateRMS(frame)
	n := int64(len(frame))
	d.totalSamples += n

	if d.primaryBaseline == nil && d.totalSamples > int64(d.cfg.SampleRate)*2 && len(d.energyHistory) >= 10 {
		var sum float64
		for _, e := range d.energyHistory {
			sum += e
		}
		avg := sum / float64(len(d.energyHistory))
		d.primaryBaseline = &avg
	}

	silent := d.isSilence(rms)
	if silent {
		d.silenceFrameCount += n
		d.samplesSinceChange += n
		return nil
	}

	d.pushHistory(rms)

	wasLongSilence := d.silenceFrameCount >= d.minSilenceSamples()
	d.silenceFrameCount = 0
	d.samplesSinceChange += n

	speakerChanged := (wasLongSilence && d.samplesSinceChange > int64(d.cfg.SampleRate)) ||
		(!wasLongSilence && d.energySuggestsSpeakerChange(rms) && d.samplesSinceChange > int64(d.cfg.SampleRate)*2)

	if speakerChanged {
		previous := d.currentSpeaker
		d.currentSpeaker = 1 - d.currentSpeaker
		if d.speakersObserved < 2 {
			d.speakersObserved = 2
		}
		d.samplesSinceChange = 0
		d.currentSpeakerEnergy = rms
		return &SpeakerChange{
			NewSpeaker:      d.currentSpeaker,
			PreviousSpeaker: previous,
			SampleOffset:    d.totalSamples,
		}
	}

	d.currentSpeakerEnergy = d.currentSpeakerEnergy*0.9 + rms*0.1
	return nil
}

// GetCurrentSpeaker returns the active speaker id (0 or 1).
func (d *EnergyDiarizer) GetCurrentSpeaker() int {
	return d.currentSpeaker
}

// GetSpeakerCount returns the number of distinct speakers actually
// observed so far: 1 until the first toggle away from the initial
// floor, then 2 (the model never distinguishes more than two floors),
// per spec.md P5.
func (d *EnergyDiarizer) GetSpeakerCount() int {
	return d.speakersObserved
}

// Reset restores all fields to their initial values.
func (d *EnergyDiarizer) Reset() {
	d.currentSpeaker = 0
	d.speakersObserved = 1
	d.totalSamples = 0
	d.samplesSinceChange = 0
	d.silenceFrameCount = 0
	d.currentSpeakerEnergy = 0
	d.primaryBaseline = nil
	d.energyHistory = nil
}
