package embedded

import (
	"encoding/binary"
	"testing"

	"github.com/vivahq/viva/pkg/provider/tts"
)

func pcmBytes(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func TestConditionPCMUpsamplesMonoToStereo(t *testing.T) {
	t.Parallel()

	clip := &tts.Clip{PCM: pcmBytes(100, -200), SampleRate: 24000, Channels: 1}
	got, err := conditionPCM(clip)
	if err != nil {
		t.Fatalf("conditionPCM: %v", err)
	}

	// 2 mono frames at 24 kHz -> 4 stereo frames at 48 kHz.
	want := []int16{100, 100, 100, 100, -200, -200, -200, -200}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestConditionPCMPassesThroughRoomFormat(t *testing.T) {
	t.Parallel()

	clip := &tts.Clip{PCM: pcmBytes(1, 2, 3, 4), SampleRate: 48000, Channels: 2}
	got, err := conditionPCM(clip)
	if err != nil {
		t.Fatalf("conditionPCM: %v", err)
	}
	want := []int16{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestConditionPCMRejectsOddRates(t *testing.T) {
	t.Parallel()

	clip := &tts.Clip{PCM: pcmBytes(1), SampleRate: 44100, Channels: 1}
	if _, err := conditionPCM(clip); err == nil {
		t.Fatal("expected error for non-divisor sample rate")
	}
}
