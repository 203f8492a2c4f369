package playback

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldside/sideline/pkg/audioio"
	"github.com/fieldside/sideline/pkg/wav"
)

// chunkBytes is the PCM16 write granularity toward the sink.
const chunkBytes = 4096

// SinkPlayer plays WAV clips through an audioio.Sink, pacing writes to
// roughly real time so a non-blocking sink is not flooded.
type SinkPlayer struct {
	sink audioio.Sink
}

// NewSinkPlayer creates a player writing to sink. The sink must already
// be started.
func NewSinkPlayer(sink audioio.Sink) *SinkPlayer {
	return &SinkPlayer{sink: sink}
}

// Play decodes the clip and streams its PCM to the sink, returning when
// the whole clip has been written and flushed.
func (p *SinkPlayer) Play(ctx context.Context, clip *Clip) error {
	pcm, rate, err := wav.Decode(clip.Data)
	if err != nil {
		return fmt.Errorf("decode clip %s: %w", clip.ID, err)
	}
	if rate <= 0 {
		return fmt.Errorf("decode clip %s: invalid sample rate %d", clip.ID, rate)
	}

	chunkDur := time.Duration(chunkBytes/2) * time.Second / time.Duration(rate)
	ticker := time.NewTicker(chunkDur)
	defer ticker.Stop()

	for off := 0; off < len(pcm); off += chunkBytes {
		end := off + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		chunk := audioio.Chunk{Data: pcm[off:end], SampleRate: rate}
		if err := p.sink.Write(ctx, chunk); err != nil {
			return fmt.Errorf("write clip %s: %w", clip.ID, err)
		}

		if end == len(pcm) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return p.sink.Flush(ctx)
}

var _ Player = (*SinkPlayer)(nil)
