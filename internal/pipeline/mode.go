package pipeline

import (
	"fmt"
	"strings"
)

// Mode is the granularity of a regeneration request.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeScriptAudio Mode = "script+audio"
	ModeAudioOnly   Mode = "audio-only"
)

// ParseMode accepts the canonical names plus the spellings older clients send.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		return ModeFull, nil
	case "script+audio", "script_audio", "script-audio", "script_and_audio":
		return ModeScriptAudio, nil
	case "audio-only", "audio_only", "audio":
		return ModeAudioOnly, nil
	}
	return "", Errorf(KindInvalidPayload, "parse mode", "unknown regeneration mode %q", s).
		WithHint(fmt.Sprintf("use one of %q, %q or %q", ModeFull, ModeScriptAudio, ModeAudioOnly))
}
