package services

import (
	"encoding/json"
	"sync"
	"testing"

	"parley/internal/core/domain"
	"parley/internal/infrastructure/monitoring"
	"parley/internal/infrastructure/repositories/memory"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentEvent struct {
	conn    domain.ConnID
	event   string
	payload any
}

// recordingGateway captures outbound events instead of writing to
// websockets. Connections listed in dead report a send failure.
type recordingGateway struct {
	mu   sync.Mutex
	sent []sentEvent
	dead map[domain.ConnID]bool
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{dead: make(map[domain.ConnID]bool)}
}

func (g *recordingGateway) Send(conn domain.ConnID, event string, payload any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dead[conn] {
		return domain.ErrUnknownConnection
	}
	g.sent = append(g.sent, sentEvent{conn: conn, event: event, payload: payload})
	return nil
}

func (g *recordingGateway) eventsFor(conn domain.ConnID) []sentEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []sentEvent
	for _, s := range g.sent {
		if s.conn == conn {
			out = append(out, s)
		}
	}
	return out
}

func (g *recordingGateway) all() []sentEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentEvent(nil), g.sent...)
}

func newTestMetrics() *monitoring.PrometheusCollector {
	return monitoring.NewPrometheusCollector(prometheus.NewRegistry())
}

func newTestRelay(t *testing.T) (*Relay, *recordingGateway, *memory.RoomTable) {
	t.Helper()

	rooms := memory.NewRoomTable().(*memory.RoomTable)
	gateway := newRecordingGateway()
	relay := NewRelay(rooms, gateway, newTestMetrics(), zap.NewNop().Sugar())
	return relay, gateway, rooms
}

func TestBroadcastToRoomExcept_SkipsSenderAndDeadConnections(t *testing.T) {
	relay, gateway, rooms := newTestRelay(t)
	rooms.EnsureRoom("r")
	rooms.AddConnection("r", "conn-a")
	rooms.AddConnection("r", "conn-b")
	rooms.AddConnection("r", "conn-c")
	gateway.dead["conn-c"] = true

	relay.BroadcastToRoomExcept("r", "conn-a", "ping", map[string]any{"x": 1})

	assert.Empty(t, gateway.eventsFor("conn-a"))
	assert.Len(t, gateway.eventsFor("conn-b"), 1)
	assert.Empty(t, gateway.eventsFor("conn-c"))
}

func TestForwardNegotiation_FlatOffer(t *testing.T) {
	relay, gateway, rooms := newTestRelay(t)
	rooms.EnsureRoom("r")
	rooms.AddConnection("r", "conn-a")
	rooms.AddConnection("r", "conn-b")

	raw := json.RawMessage(`{"type":"offer","sdp":"v=0..."}`)
	require.NoError(t, relay.ForwardNegotiation(KindOffer, raw, "r", "conn-a", "alice"))

	events := gateway.eventsFor("conn-b")
	require.Len(t, events, 1)
	assert.Equal(t, "offer", events[0].event)

	body := events[0].payload.(map[string]any)
	assert.Equal(t, "v=0...", body["sdp"])
	assert.Equal(t, domain.RoomID("r"), body["roomId"])
	assert.Equal(t, domain.ConnID("conn-a"), body["fromConnectionId"])
	assert.Equal(t, domain.Identity("alice"), body["fromIdentity"])

	assert.Empty(t, gateway.eventsFor("conn-a"))
}

func TestForwardNegotiation_NestedAnswerIsFlattened(t *testing.T) {
	relay, gateway, rooms := newTestRelay(t)
	rooms.EnsureRoom("r")
	rooms.AddConnection("r", "conn-a")
	rooms.AddConnection("r", "conn-b")

	raw := json.RawMessage(`{"answer":{"type":"answer","sdp":"v=0..."}}`)
	require.NoError(t, relay.ForwardNegotiation(KindAnswer, raw, "r", "conn-b", "bob"))

	events := gateway.eventsFor("conn-a")
	require.Len(t, events, 1)

	body := events[0].payload.(map[string]any)
	assert.Equal(t, "v=0...", body["sdp"])
	assert.Equal(t, domain.Identity("bob"), body["fromIdentity"])
}

func TestForwardNegotiation_ICECandidate(t *testing.T) {
	relay, gateway, rooms := newTestRelay(t)
	rooms.EnsureRoom("r")
	rooms.AddConnection("r", "conn-a")
	rooms.AddConnection("r", "conn-b")

	raw := json.RawMessage(`{"candidate":"candidate:1 1 UDP 2122252543 192.0.2.1 54400 typ host","sdpMid":"0"}`)
	require.NoError(t, relay.ForwardNegotiation(KindICECandidate, raw, "r", "conn-a", "alice"))

	events := gateway.eventsFor("conn-b")
	require.Len(t, events, 1)
	body := events[0].payload.(map[string]any)
	assert.Equal(t, "0", body["sdpMid"])
	assert.Contains(t, body["candidate"], "typ host")
}

func TestForwardNegotiation_MalformedPayloads(t *testing.T) {
	relay, gateway, rooms := newTestRelay(t)
	rooms.EnsureRoom("r")
	rooms.AddConnection("r", "conn-a")
	rooms.AddConnection("r", "conn-b")

	cases := []struct {
		name string
		kind string
		raw  string
	}{
		{"not json", KindOffer, `{{{`},
		{"null offer body", KindOffer, `null`},
		{"null candidate body", KindICECandidate, `null`},
		{"offer without sdp", KindOffer, `{"type":"offer"}`},
		{"answer without sdp", KindAnswer, `{"answer":{"type":"answer"}}`},
		{"candidate without candidate", KindICECandidate, `{"sdpMid":"0"}`},
		{"unknown kind", "renegotiate", `{"sdp":"v=0"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := relay.ForwardNegotiation(tc.kind, json.RawMessage(tc.raw), "r", "conn-a", "alice")
			assert.ErrorIs(t, err, domain.ErrMalformedPayload)
		})
	}
	assert.Empty(t, gateway.all(), "malformed payloads must not reach the room")
}

func TestRelayTranscription_DeliveredTwice(t *testing.T) {
	relay, gateway, rooms := newTestRelay(t)
	rooms.EnsureRoom("r")
	rooms.AddConnection("r", "conn-a")
	rooms.AddConnection("r", "conn-b")

	relay.RelayTranscription("r", "conn-a", "alice", "hello there", "en-US")

	peerEvents := gateway.eventsFor("conn-b")
	require.Len(t, peerEvents, 1)
	peerPayload := peerEvents[0].payload.(TranscriptionPayload)
	assert.Equal(t, "hello there", peerPayload.Transcription)
	assert.False(t, peerPayload.IsOwnMessage)

	ownEvents := gateway.eventsFor("conn-a")
	require.Len(t, ownEvents, 1)
	ownPayload := ownEvents[0].payload.(TranscriptionPayload)
	assert.Equal(t, "hello there", ownPayload.Transcription)
	assert.True(t, ownPayload.IsOwnMessage)
	assert.Equal(t, domain.Identity("alice"), ownPayload.Identity)
}

func TestRelaySynthesizedSpeech_UnicastOnly(t *testing.T) {
	relay, gateway, rooms := newTestRelay(t)
	rooms.EnsureRoom("r")
	rooms.AddConnection("r", "conn-a")
	rooms.AddConnection("r", "conn-b")

	relay.RelaySynthesizedSpeech("conn-a", "bW9ja2F1ZGlv", "en-US")

	require.Len(t, gateway.eventsFor("conn-a"), 1)
	assert.Empty(t, gateway.eventsFor("conn-b"))

	payload := gateway.eventsFor("conn-a")[0].payload.(TextToSpeechResponsePayload)
	assert.Equal(t, "bW9ja2F1ZGlv", payload.Audio)
}

func TestRelaySynthesisError(t *testing.T) {
	relay, gateway, rooms := newTestRelay(t)
	rooms.EnsureRoom("r")
	rooms.AddConnection("r", "conn-a")

	relay.RelaySynthesisError("conn-a", "speech synthesis failed", "quota exceeded")

	events := gateway.eventsFor("conn-a")
	require.Len(t, events, 1)
	assert.Equal(t, EventTextToSpeechError, events[0].event)

	payload := events[0].payload.(TextToSpeechErrorPayload)
	assert.Equal(t, "speech synthesis failed", payload.Error)
	assert.Equal(t, "quota exceeded", payload.Details)
}
