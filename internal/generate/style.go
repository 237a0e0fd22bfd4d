package generate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StyleFingerprint is the structured form of an agent's writing_style column.
// Malformed agent configuration is caught here rather than deep inside a
// prompt builder.
type StyleFingerprint struct {
	Tone            string   `json:"tone"`
	Emojis          []string `json:"emojis"`
	VocabularyStyle string   `json:"vocabulary_style"`
	SampleVoice     string   `json:"sample_voice"`
}

// IsZero reports whether no style was configured.
func (s StyleFingerprint) IsZero() bool {
	return s.Tone == "" && len(s.Emojis) == 0 && s.VocabularyStyle == "" && s.SampleVoice == ""
}

// ParseStyle decodes the free-form writing_style record. Empty or null input
// yields a zero fingerprint without error; anything else must be well-formed.
func ParseStyle(raw json.RawMessage) (StyleFingerprint, error) {
	var fp StyleFingerprint
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "{}" {
		return fp, nil
	}
	if err := json.Unmarshal(raw, &fp); err != nil {
		return StyleFingerprint{}, fmt.Errorf("generate: parse style fingerprint: %w", err)
	}
	return fp, nil
}

// instructions renders the fingerprint as prompt lines. Zero fingerprints
// render nothing so the persona prompt stays short.
func (s StyleFingerprint) instructions() string {
	if s.IsZero() {
		return ""
	}
	var b strings.Builder
	b.WriteString("Style guide:\n")
	if s.Tone != "" {
		fmt.Fprintf(&b, "- Tone: %s\n", s.Tone)
	}
	if len(s.Emojis) > 0 {
		fmt.Fprintf(&b, "- Emojis you may use: %s\n", strings.Join(s.Emojis, " "))
	}
	if s.VocabularyStyle != "" {
		fmt.Fprintf(&b, "- Vocabulary: %s\n", s.VocabularyStyle)
	}
	if s.SampleVoice != "" {
		fmt.Fprintf(&b, "- Sample of your voice: %q\n", s.SampleVoice)
	}
	return b.String()
}
