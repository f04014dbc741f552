package speech

import (
	"context"
	"fmt"
	"strings"
	"time"

	gspeech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	tts "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/internal/infrastructure/monitoring"
	"parley/pkg/circuitbreaker"
	"parley/pkg/retry"
	"parley/pkg/tracing"

	"go.uber.org/zap"
)

// Config tunes the provider wrappers.
type Config struct {
	CredentialsFile string
	DefaultLanguage string
	RequestTimeout  time.Duration
	Retry           retry.Config
	Breaker         circuitbreaker.Config
}

// GoogleProvider implements ports.SpeechService against the Google
// Cloud Speech-to-Text and Text-to-Speech APIs. Every call is wrapped
// in retry with backoff and a shared circuit breaker, so a dead
// provider degrades to fast failures instead of piling up timeouts.
type GoogleProvider struct {
	stt *gspeech.Client
	tts *tts.Client

	cfg     Config
	breaker *circuitbreaker.Breaker
	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
}

// NewGoogleProvider dials both API clients with the credentials file.
// Callers are expected to treat a construction error as "speech
// disabled", not as fatal.
func NewGoogleProvider(ctx context.Context, cfg Config, metrics *monitoring.PrometheusCollector, logger *zap.SugaredLogger) (*GoogleProvider, error) {
	if cfg.CredentialsFile == "" {
		return nil, fmt.Errorf("no speech credentials configured: %w", domain.ErrSpeechUnavailable)
	}

	sttClient, err := gspeech.NewClient(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("speech-to-text client: %w", err)
	}

	ttsClient, err := tts.NewClient(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		sttClient.Close()
		return nil, fmt.Errorf("text-to-speech client: %w", err)
	}

	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en-US"
	}

	return &GoogleProvider{
		stt:     sttClient,
		tts:     ttsClient,
		cfg:     cfg,
		breaker: circuitbreaker.New(cfg.Breaker),
		metrics: metrics,
		logger:  logger,
	}, nil
}

var _ ports.SpeechService = (*GoogleProvider)(nil)

// Transcribe recognizes one audio chunk. An empty transcript with a
// nil error means the provider heard nothing usable; callers drop it.
func (p *GoogleProvider) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "speech.transcribe")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	if language == "" {
		language = p.cfg.DefaultLanguage
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:     encodingFor(mimeType),
			LanguageCode: language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	started := time.Now()
	var transcript string
	err := p.breaker.Do(func() error {
		resp, err := retry.DoWithResult(ctx, p.cfg.Retry, func() (*speechpb.RecognizeResponse, error) {
			return p.stt.Recognize(ctx, req)
		})
		if err != nil {
			return err
		}
		transcript = joinTranscripts(resp)
		return nil
	})
	p.metrics.ObserveSpeechRequest("transcribe", time.Since(started), err)

	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return transcript, nil
}

// Synthesize renders the text as MP3 audio.
func (p *GoogleProvider) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "speech.synthesize")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	if language == "" {
		language = p.cfg.DefaultLanguage
	}

	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: language,
			SsmlGender:   texttospeechpb.SsmlVoiceGender_NEUTRAL,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	}

	started := time.Now()
	var audio []byte
	err := p.breaker.Do(func() error {
		resp, err := retry.DoWithResult(ctx, p.cfg.Retry, func() (*texttospeechpb.SynthesizeSpeechResponse, error) {
			return p.tts.SynthesizeSpeech(ctx, req)
		})
		if err != nil {
			return err
		}
		audio = resp.GetAudioContent()
		return nil
	})
	p.metrics.ObserveSpeechRequest("synthesize", time.Since(started), err)

	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}
	return audio, nil
}

// Close releases both API clients.
func (p *GoogleProvider) Close() error {
	sttErr := p.stt.Close()
	ttsErr := p.tts.Close()
	if sttErr != nil {
		return sttErr
	}
	return ttsErr
}

// encodingFor maps browser-supplied MIME types onto recognition
// encodings. Unknown types are left unspecified so the API can sniff
// the container itself.
func encodingFor(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	mt := strings.ToLower(mimeType)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i] // strip codec parameters, e.g. "audio/webm;codecs=opus"
	}
	mt = strings.TrimSpace(mt)

	switch mt {
	case "audio/webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	case "audio/ogg", "application/ogg":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "audio/wav", "audio/x-wav", "audio/l16":
		return speechpb.RecognitionConfig_LINEAR16
	case "audio/flac", "audio/x-flac":
		return speechpb.RecognitionConfig_FLAC
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func joinTranscripts(resp *speechpb.RecognizeResponse) string {
	var parts []string
	for _, result := range resp.GetResults() {
		if alts := result.GetAlternatives(); len(alts) > 0 {
			parts = append(parts, alts[0].GetTranscript())
		}
	}
	return strings.Join(parts, " ")
}
