package ports

import "context"

// Transcriber converts an audio chunk into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, error)
}

// Synthesizer converts text into an encoded audio blob.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// SpeechService is the external speech provider boundary. A nil
// SpeechService means speech features are disabled (for example when
// no provider credentials were configured); signaling stays fully
// functional.
type SpeechService interface {
	Transcriber
	Synthesizer
}
