package wav

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestAssemblerFragmentConservation(t *testing.T) {
	a := NewAssembler()

	fragments := [][]byte{
		{1, 2, 3, 4},
		{5, 6},
		{7, 8, 9, 10, 11, 12},
	}
	want := 0
	for i, frag := range fragments {
		rate := 0
		if i == 1 {
			rate = 24000 // first declared rate wins even mid-turn
		}
		a.Add(frag, rate)
		want += len(frag)
	}

	clip := a.Finalize()
	if clip == nil {
		t.Fatal("expected a clip")
	}
	if len(clip) != HeaderSize+want {
		t.Fatalf("expected %d bytes, got %d", HeaderSize+want, len(clip))
	}

	dataSize := int(binary.LittleEndian.Uint32(clip[40:44]))
	if dataSize != want {
		t.Errorf("header data size %d, want %d", dataSize, want)
	}

	payload := clip[HeaderSize:]
	expected := bytes.Join(fragments, nil)
	if !bytes.Equal(payload, expected) {
		t.Error("payload does not match concatenated fragments in arrival order")
	}

	// Assembler resets after finalize
	if a.Len() != 0 {
		t.Errorf("expected empty assembler after finalize, got %d fragments", a.Len())
	}
	if a.Finalize() != nil {
		t.Error("finalize with no fragments should return nil")
	}
}

func TestAssemblerFirstRateWins(t *testing.T) {
	a := NewAssembler()
	a.Add([]byte{0, 0}, 0)
	a.Add([]byte{0, 0}, 16000)
	a.Add([]byte{0, 0}, 44100)

	clip := a.Finalize()
	_, rate, err := Decode(clip)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("expected first non-zero rate 16000, got %d", rate)
	}
}

func TestAssemblerDefaultRate(t *testing.T) {
	a := NewAssembler()
	a.Add([]byte{1, 2}, 0)

	clip := a.Finalize()
	_, rate, err := Decode(clip)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if rate != DefaultSampleRate {
		t.Errorf("expected default rate %d, got %d", DefaultSampleRate, rate)
	}
}

func TestAssemblerDiscard(t *testing.T) {
	a := NewAssembler()
	a.Add([]byte{1, 2, 3}, 24000)
	a.Discard()

	if a.Len() != 0 {
		t.Errorf("expected no fragments after discard, got %d", a.Len())
	}
	if a.Finalize() != nil {
		t.Error("finalize after discard should return nil")
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pcm  []byte
		rate int
	}{
		{"short 24k", []byte{0x01, 0x02, 0x03, 0x04}, 24000},
		{"16k", bytes.Repeat([]byte{0xAB, 0xCD}, 1000), 16000},
		{"odd rate", []byte{0xFF, 0x7F, 0x00, 0x80}, 22050},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container := Encode(tt.pcm, tt.rate)
			pcm, rate, err := Decode(container)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if rate != tt.rate {
				t.Errorf("rate = %d, want %d", rate, tt.rate)
			}
			if !bytes.Equal(pcm, tt.pcm) {
				t.Error("decoded PCM does not match original")
			}
		})
	}
}

func TestHeaderFields(t *testing.T) {
	clip := Encode([]byte{1, 2, 3, 4}, 24000)
	le := binary.LittleEndian

	if string(clip[0:4]) != "RIFF" || string(clip[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if string(clip[12:16]) != "fmt " || string(clip[36:40]) != "data" {
		t.Error("missing fmt /data chunk IDs")
	}
	if got := le.Uint32(clip[4:8]); got != 36+4 {
		t.Errorf("RIFF size = %d, want 40", got)
	}
	if got := le.Uint16(clip[20:22]); got != 1 {
		t.Errorf("audio format = %d, want 1 (PCM)", got)
	}
	if got := le.Uint16(clip[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := le.Uint32(clip[28:32]); got != 48000 {
		t.Errorf("byte rate = %d, want 48000", got)
	}
	if got := le.Uint16(clip[32:34]); got != 2 {
		t.Errorf("block align = %d, want 2", got)
	}
	if got := le.Uint16(clip[34:36]); got != 16 {
		t.Errorf("bits per sample = %d, want 16", got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := Decode([]byte("tiny")); err == nil {
		t.Error("expected error for short input")
	}
	bad := Encode([]byte{1, 2}, 24000)
	copy(bad[0:4], "JUNK")
	if _, _, err := Decode(bad); err == nil {
		t.Error("expected error for bad markers")
	}
}
