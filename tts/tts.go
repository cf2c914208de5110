// Package tts abstracts speech synthesis for the broadcast pipeline.
package tts

import "context"

// Synthesizer turns reply text into an encoded audio clip. The style tag is
// the speech-style hint mapped from the persona's emotion label;
// implementations may fold it into voice selection or ignore it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, style string) ([]byte, error)
}

// StyleForEmotion maps the persona's emotion label to a speech-style tag.
// Unknown or empty emotions fall back to neutral.
func StyleForEmotion(emotion string) string {
	switch emotion {
	case "happy", "excited":
		return "cheerful"
	case "sad":
		return "empathetic"
	case "angry", "annoyed":
		return "serious"
	default:
		return "neutral"
	}
}
