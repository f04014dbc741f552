package services

import (
	"encoding/json"
	"fmt"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/internal/infrastructure/monitoring"

	"go.uber.org/zap"
)

// Outbound event names.
const (
	EventUserJoined           = "user-joined"
	EventUserLeft             = "user-left"
	EventRoomFull             = "room-full"
	EventUserMediaPermissions = "user-media-permissions"
	EventTranscription        = "transcription"
	EventTextToSpeechResponse = "text-to-speech-response"
	EventTextToSpeechError    = "text-to-speech-error"
)

// Negotiation message kinds relayed verbatim between peers.
const (
	KindOffer        = "offer"
	KindAnswer       = "answer"
	KindICECandidate = "ice-candidate"
)

type UserEventPayload struct {
	UserID   domain.ConnID   `json:"userId"`
	Identity domain.Identity `json:"identity"`
	RoomID   domain.RoomID   `json:"roomId"`
}

type RoomFullPayload struct {
	RoomID domain.RoomID `json:"roomId"`
}

type TranscriptionPayload struct {
	Transcription string          `json:"transcription"`
	UserID        domain.ConnID   `json:"userId"`
	Identity      domain.Identity `json:"identity"`
	Language      string          `json:"language"`
	IsOwnMessage  bool            `json:"isOwnMessage"`
}

type TextToSpeechResponsePayload struct {
	Audio    string `json:"audio"`
	Language string `json:"language"`
}

type TextToSpeechErrorPayload struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Relay forwards events to the other members of a room. It never
// parses negotiation payload internals beyond checking the expected
// top-level shape; bodies pass through untouched apart from the
// sender tags.
type Relay struct {
	rooms   ports.RoomTable
	gateway ports.ConnectionGateway
	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
}

func NewRelay(rooms ports.RoomTable, gateway ports.ConnectionGateway, metrics *monitoring.PrometheusCollector, logger *zap.SugaredLogger) *Relay {
	return &Relay{
		rooms:   rooms,
		gateway: gateway,
		metrics: metrics,
		logger:  logger,
	}
}

// BroadcastToRoomExcept delivers the event to every connection in the
// room except the excluded one. Best effort: a connection that dropped
// between lookup and write is skipped, never an error.
func (r *Relay) BroadcastToRoomExcept(room domain.RoomID, except domain.ConnID, event string, payload any) {
	for _, conn := range r.rooms.Connections(room) {
		if conn == except {
			continue
		}
		if err := r.gateway.Send(conn, event, payload); err != nil {
			r.logger.Debugw("skipping dead connection during broadcast",
				"room_id", room, "conn_id", conn, "event", event, "error", err)
			continue
		}
		r.metrics.MessageRelayed(event)
	}
}

// ForwardNegotiation relays an offer, answer or ICE candidate to the
// rest of the sender's room. Two input shapes are accepted for offers
// and answers: the description itself ({type, sdp}) or the same object
// nested under the kind key ({offer: {type, sdp}}). Output is always
// the flattened form with fromConnectionId and fromIdentity added.
func (r *Relay) ForwardNegotiation(kind string, raw json.RawMessage, room domain.RoomID, senderConn domain.ConnID, senderIdentity domain.Identity) error {
	body, err := normalizeNegotiation(kind, raw)
	if err != nil {
		return err
	}

	body["roomId"] = room
	body["fromConnectionId"] = senderConn
	body["fromIdentity"] = senderIdentity

	r.BroadcastToRoomExcept(room, senderConn, kind, body)
	return nil
}

func normalizeNegotiation(kind string, raw json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if m == nil {
		// A literal null body decodes without error; the sender tags
		// below would otherwise be written into a nil map.
		return nil, fmt.Errorf("%w: empty %s payload", domain.ErrMalformedPayload, kind)
	}

	switch kind {
	case KindOffer, KindAnswer:
		if nested, ok := m[kind].(map[string]any); ok {
			m = nested
		}
		if _, ok := m["sdp"]; !ok {
			return nil, fmt.Errorf("%w: %s carries no sdp", domain.ErrMalformedPayload, kind)
		}
	case KindICECandidate:
		if _, ok := m["candidate"]; !ok {
			return nil, fmt.Errorf("%w: no candidate present", domain.ErrMalformedPayload)
		}
	default:
		return nil, fmt.Errorf("%w: unknown negotiation kind %q", domain.ErrMalformedPayload, kind)
	}
	return m, nil
}

// RelayTranscription delivers one transcription result twice: to the
// rest of the room tagged as a foreign message and back to the sender
// tagged as its own, so every client renders the same transcript log.
func (r *Relay) RelayTranscription(room domain.RoomID, senderConn domain.ConnID, senderIdentity domain.Identity, text, language string) {
	payload := TranscriptionPayload{
		Transcription: text,
		UserID:        senderConn,
		Identity:      senderIdentity,
		Language:      language,
	}
	r.BroadcastToRoomExcept(room, senderConn, EventTranscription, payload)

	payload.IsOwnMessage = true
	if err := r.gateway.Send(senderConn, EventTranscription, payload); err != nil {
		r.logger.Debugw("sender dropped before transcription echo",
			"room_id", room, "conn_id", senderConn, "error", err)
		return
	}
	r.metrics.MessageRelayed(EventTranscription)
}

// RelaySynthesizedSpeech answers a text-to-speech request. Unicast to
// the requester only.
func (r *Relay) RelaySynthesizedSpeech(conn domain.ConnID, audioBase64, language string) {
	payload := TextToSpeechResponsePayload{Audio: audioBase64, Language: language}
	if err := r.gateway.Send(conn, EventTextToSpeechResponse, payload); err != nil {
		r.logger.Debugw("requester dropped before synthesis response", "conn_id", conn, "error", err)
		return
	}
	r.metrics.MessageRelayed(EventTextToSpeechResponse)
}

// RelaySynthesisError reports a failed synthesis to the requester.
func (r *Relay) RelaySynthesisError(conn domain.ConnID, message, details string) {
	payload := TextToSpeechErrorPayload{Error: message, Details: details}
	if err := r.gateway.Send(conn, EventTextToSpeechError, payload); err != nil {
		r.logger.Debugw("requester dropped before synthesis error", "conn_id", conn, "error", err)
	}
}
