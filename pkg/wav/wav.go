// Package wav assembles the audio fragments of one response turn into a
// playable single-channel 16-bit linear-PCM WAVE container.
package wav

import (
	"encoding/binary"
	"fmt"
)

// DefaultSampleRate is assumed when no fragment declared a rate.
// Synthesized agent speech arrives at 24 kHz, distinct from the 16 kHz
// used for outbound capture.
const DefaultSampleRate = 24000

// HeaderSize is the canonical RIFF/WAVE header length.
const HeaderSize = 44

// Assembler accumulates the decoded audio fragments of the current turn.
// Fragments are appended in arrival order; the first declared sample
// rate governs the whole turn.
type Assembler struct {
	fragments [][]byte
	rate      int
	total     int
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Add appends a fragment. A non-zero rate is adopted only if no earlier
// fragment declared one.
func (a *Assembler) Add(fragment []byte, rate int) {
	if len(fragment) == 0 {
		return
	}
	buf := make([]byte, len(fragment))
	copy(buf, fragment)
	a.fragments = append(a.fragments, buf)
	a.total += len(buf)
	if a.rate == 0 && rate > 0 {
		a.rate = rate
	}
}

// Len returns the number of buffered fragments.
func (a *Assembler) Len() int {
	return len(a.fragments)
}

// Discard drops all buffered fragments without assembling them.
// Used when a local assist response has claimed the turn.
func (a *Assembler) Discard() {
	a.reset()
}

// Finalize concatenates the buffered fragments behind a canonical WAVE
// header and resets the assembler for the next turn. Returns nil when
// no fragments were buffered.
func (a *Assembler) Finalize() []byte {
	if len(a.fragments) == 0 {
		return nil
	}

	rate := a.rate
	if rate == 0 {
		rate = DefaultSampleRate
	}

	out := make([]byte, HeaderSize+a.total)
	writeHeader(out, rate, a.total)
	off := HeaderSize
	for _, frag := range a.fragments {
		off += copy(out[off:], frag)
	}

	a.reset()
	return out
}

func (a *Assembler) reset() {
	a.fragments = nil
	a.rate = 0
	a.total = 0
}

// Encode wraps raw PCM16 mono data in a canonical WAVE container at the
// given rate. A zero rate falls back to DefaultSampleRate.
func Encode(pcm []byte, rate int) []byte {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	out := make([]byte, HeaderSize+len(pcm))
	writeHeader(out, rate, len(pcm))
	copy(out[HeaderSize:], pcm)
	return out
}

// writeHeader fills the 44-byte RIFF/WAVE header for PCM mono 16-bit.
func writeHeader(buf []byte, rate, dataSize int) {
	le := binary.LittleEndian

	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16)                // fmt chunk size
	le.PutUint16(buf[20:22], 1)                 // PCM
	le.PutUint16(buf[22:24], 1)                 // mono
	le.PutUint32(buf[24:28], uint32(rate))      // sample rate
	le.PutUint32(buf[28:32], uint32(rate*2))    // byte rate
	le.PutUint16(buf[32:34], 2)                 // block align
	le.PutUint16(buf[34:36], 16)                // bits per sample

	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], uint32(dataSize))
}

// Decode recovers the raw PCM payload and sample rate from a container
// produced by this package.
func Decode(data []byte) (pcm []byte, rate int, err error) {
	if len(data) < HeaderSize {
		return nil, 0, fmt.Errorf("wav: container too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("wav: missing RIFF/WAVE markers")
	}
	if string(data[36:40]) != "data" {
		return nil, 0, fmt.Errorf("wav: missing data chunk")
	}

	le := binary.LittleEndian
	rate = int(le.Uint32(data[24:28]))
	dataSize := int(le.Uint32(data[40:44]))
	if HeaderSize+dataSize > len(data) {
		return nil, 0, fmt.Errorf("wav: declared data size %d exceeds container", dataSize)
	}
	return data[HeaderSize : HeaderSize+dataSize], rate, nil
}
