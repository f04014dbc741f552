package speech

import (
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
)

func TestEncodingFor(t *testing.T) {
	cases := []struct {
		mimeType string
		want     speechpb.RecognitionConfig_AudioEncoding
	}{
		{"audio/webm", speechpb.RecognitionConfig_WEBM_OPUS},
		{"audio/webm;codecs=opus", speechpb.RecognitionConfig_WEBM_OPUS},
		{"AUDIO/WEBM", speechpb.RecognitionConfig_WEBM_OPUS},
		{"audio/ogg", speechpb.RecognitionConfig_OGG_OPUS},
		{"application/ogg", speechpb.RecognitionConfig_OGG_OPUS},
		{"audio/wav", speechpb.RecognitionConfig_LINEAR16},
		{"audio/x-wav", speechpb.RecognitionConfig_LINEAR16},
		{"audio/flac", speechpb.RecognitionConfig_FLAC},
		{"audio/mp4", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED},
		{"", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, encodingFor(tc.mimeType), "mime type %q", tc.mimeType)
	}
}

func TestJoinTranscripts(t *testing.T) {
	resp := &speechpb.RecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{
				{Transcript: "hello"},
				{Transcript: "hallo"},
			}},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{
				{Transcript: "world"},
			}},
			{}, // no alternatives at all
		},
	}

	assert.Equal(t, "hello world", joinTranscripts(resp))
	assert.Equal(t, "", joinTranscripts(&speechpb.RecognizeResponse{}))
}
