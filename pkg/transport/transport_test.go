package transport

import "testing"

func TestSelectMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		botCredentials     bool
		cloudTranscription bool
		want               Mode
	}{
		{"no bot credentials prefers embedded", false, false, ModeEmbedded},
		{"embedded wins even with cloud transcription flag", false, true, ModeEmbedded},
		{"cloud transcription prefers cloud bot", true, true, ModeCloud},
		{"bot credentials without transcription falls back to headless", true, false, ModeHeadless},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SelectMode(tt.botCredentials, tt.cloudTranscription); got != tt.want {
				t.Fatalf("SelectMode(%v, %v) = %s, want %s", tt.botCredentials, tt.cloudTranscription, got, tt.want)
			}
		})
	}
}

func TestModeIsValid(t *testing.T) {
	t.Parallel()

	for _, m := range []Mode{ModeEmbedded, ModeHeadless, ModeCloud} {
		if !m.IsValid() {
			t.Errorf("mode %q should be valid", m)
		}
	}
	if Mode("zoom").IsValid() {
		t.Error("unknown mode should be invalid")
	}
}

func TestEventTypeString(t *testing.T) {
	t.Parallel()

	want := map[EventType]string{
		EventJoined:   "JOINED",
		EventLeft:     "LEFT",
		EventSpeech:   "SPEECH",
		EventErrored:  "ERRORED",
		EventType(42): "UNKNOWN",
	}
	for et, s := range want {
		if et.String() != s {
			t.Errorf("EventType(%d).String() = %q, want %q", et, et.String(), s)
		}
	}
}
