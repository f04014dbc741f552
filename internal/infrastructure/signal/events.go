package signal

// Inbound event names. Outbound names live next to the relay that
// emits them.
const (
	eventSessionInfo      = "session-info"
	eventMediaPermissions = "media-permissions"
	eventCreateRoom       = "create-room"
	eventJoinRoom         = "join-room"
	eventLeaveRoom        = "leave-room"
	eventOffer            = "offer"
	eventAnswer           = "answer"
	eventICECandidate     = "ice-candidate"
	eventSpeechToText     = "speech-to-text"
	eventTextToSpeech     = "text-to-speech"
)

// SessionInfoPayload declares the client's durable identity, and
// optionally the room it believes it still belongs to after a reload.
type SessionInfoPayload struct {
	Identity string `json:"identity"`
	RoomID   string `json:"roomId,omitempty"`
}

// RoomPayload carries the room key for create-room, join-room and
// leave-room.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// MediaPermissionsPayload announces which local tracks the client was
// granted. Forwarded to the other member with the sender tags added.
type MediaPermissionsPayload struct {
	Video bool `json:"video"`
	Audio bool `json:"audio"`
}

// SpeechToTextPayload is one recorded audio chunk for transcription.
type SpeechToTextPayload struct {
	AudioChunk string `json:"audioChunk"`
	MimeType   string `json:"mimeType,omitempty"`
	Language   string `json:"language,omitempty"`
}

// TextToSpeechPayload asks for the text to be synthesized as audio.
type TextToSpeechPayload struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}
