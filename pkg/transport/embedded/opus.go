package embedded

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"

	"github.com/vivahq/viva/pkg/provider/tts"
)

// Room audio format: 48 kHz stereo Opus, 20 ms frames.
const (
	roomSampleRate = 48000
	roomChannels   = 2
	frameSize      = 960 // samples per channel per 20 ms frame
	maxPacketBytes = 4000
)

// opusEncoder wraps a gopus encoder plus the PCM conditioning needed to feed
// arbitrary synthesis output into the room's fixed format.
type opusEncoder struct {
	enc *gopus.Encoder
}

func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(roomSampleRate, roomChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encodeClip conditions the clip to 48 kHz stereo and encodes it into Opus
// packets, one per 20 ms frame. The final partial frame is zero-padded.
func (o *opusEncoder) encodeClip(clip *tts.Clip) ([][]byte, error) {
	pcm, err := conditionPCM(clip)
	if err != nil {
		return nil, err
	}

	samplesPerFrame := frameSize * roomChannels
	var frames [][]byte
	for off := 0; off < len(pcm); off += samplesPerFrame {
		end := off + samplesPerFrame
		frame := pcm[off:min(end, len(pcm))]
		if len(frame) < samplesPerFrame {
			padded := make([]int16, samplesPerFrame)
			copy(padded, frame)
			frame = padded
		}
		packet, err := o.enc.Encode(frame, frameSize, maxPacketBytes)
		if err != nil {
			return nil, fmt.Errorf("encode opus frame: %w", err)
		}
		frames = append(frames, packet)
	}
	return frames, nil
}

// conditionPCM converts a clip's little-endian 16-bit PCM into interleaved
// 48 kHz stereo samples. Upsampling is by integer sample repetition, which is
// adequate for synthesized speech from the 24 kHz providers in use.
func conditionPCM(clip *tts.Clip) ([]int16, error) {
	if clip.SampleRate <= 0 || clip.Channels <= 0 {
		return nil, fmt.Errorf("clip has invalid format %dHz/%dch", clip.SampleRate, clip.Channels)
	}
	if roomSampleRate%clip.SampleRate != 0 {
		return nil, fmt.Errorf("unsupported clip sample rate %dHz", clip.SampleRate)
	}
	repeat := roomSampleRate / clip.SampleRate

	samples := bytesToInt16(clip.PCM)
	frames := len(samples) / clip.Channels

	out := make([]int16, 0, frames*repeat*roomChannels)
	for i := 0; i < frames; i++ {
		left := samples[i*clip.Channels]
		right := left
		if clip.Channels >= 2 {
			right = samples[i*clip.Channels+1]
		}
		for r := 0; r < repeat; r++ {
			out = append(out, left, right)
		}
	}
	return out, nil
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}
