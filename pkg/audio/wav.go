package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"

	"github.com/handy-ai/handy-engine/pkg/herr"
)

// EncodePCM16 converts f32 samples in [-1,1] to little-endian 16-bit
// PCM, the sample format WAV and most streaming STT wire protocols
// expect.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*32767)))
	}
	return out
}

// NewWavBuffer wraps raw 16-bit PCM in a minimal RIFF/WAVE container.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// WriteWavFile encodes samples (16kHz mono f32) as WAV and writes them
// to path, the on-disk form of the "audio file reference" HistoryEntry
// carries per spec.md §3.
func WriteWavFile(path string, samples []float32) error {
	data := NewWavBuffer(EncodePCM16(samples), TargetSampleRate)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return herr.Wrap(herr.Filesystem, "writing recording to disk", err)
	}
	return nil
}

// DeleteWavFile removes a recording written by WriteWavFile; callers
// (history retention) log rather than surface failures, per spec.md
// §4.12.
func DeleteWavFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return herr.Wrap(herr.Filesystem, "deleting recording", err)
	}
	return nil
}
