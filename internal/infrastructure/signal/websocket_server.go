package signal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/internal/core/services"
	"parley/internal/infrastructure/monitoring"
	"parley/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Options carries the transport tuning knobs.
type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64

	// MessagesPerSecond of 0 disables per-connection rate limiting.
	MessagesPerSecond float64
	MessageBurst      int
}

// WebSocketServer terminates signaling connections. Each connection
// gets a server-minted ID, a reader goroutine and a ping ticker; every
// inbound event is dispatched to the coordinator or the relay. A
// malformed or unauthorized event is dropped with a log entry, never a
// reason to close the connection.
type WebSocketServer struct {
	table       *ConnTable
	coordinator *services.Coordinator
	relay       *services.Relay
	speech      ports.SpeechService

	opts    Options
	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
}

// NewWebSocketServer wires the transport. speech may be nil, which
// disables the speech side channel while leaving signaling untouched.
func NewWebSocketServer(
	table *ConnTable,
	coordinator *services.Coordinator,
	relay *services.Relay,
	speech ports.SpeechService,
	opts Options,
	metrics *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	return &WebSocketServer{
		table:       table,
		coordinator: coordinator,
		relay:       relay,
		speech:      speech,
		opts:        opts,
		metrics:     metrics,
		logger:      logger,
	}
}

// ConnectionCount reports live websocket connections.
func (s *WebSocketServer) ConnectionCount() int {
	return s.table.Count()
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID := s.table.Add(conn)
	s.metrics.ConnectionOpened()
	s.logger.Infow("connection opened", "conn_id", connID, "remote_addr", r.RemoteAddr)

	defer func() {
		s.table.Remove(connID)
		s.coordinator.Disconnect(connID)
		s.metrics.ConnectionClosed()
		s.logger.Infow("connection closed", "conn_id", connID)
	}()

	if s.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(s.opts.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		return nil
	})

	var limiter *rate.Limiter
	if s.opts.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.MessageBurst)
	}

	pingTicker := time.NewTicker(s.opts.PingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan envelope, 10)
	errorChan := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				select {
				case errorChan <- err:
				case <-done:
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

			var msg envelope
			if err := json.Unmarshal(data, &msg); err != nil {
				s.logger.Infow("dropping unparseable frame", "conn_id", connID, "error", err)
				continue
			}
			// The select loop may have exited on a ping failure while
			// the buffer was full; without the done case this send
			// would pin the goroutine forever.
			select {
			case messageChan <- msg:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case msg := <-messageChan:
			if limiter != nil && !limiter.Allow() {
				s.logger.Warnw("rate limit exceeded, dropping message",
					"conn_id", connID, "event", msg.Type)
				continue
			}
			if err := s.handleMessage(context.Background(), connID, msg); err != nil {
				s.logger.Infow("event handling failed",
					"conn_id", connID, "event", msg.Type, "error", err)
			}

		case <-pingTicker.C:
			if err := s.table.Ping(connID); err != nil {
				s.logger.Infow("ping failed", "conn_id", connID, "error", err)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Infow("read failed", "conn_id", connID, "error", err)
			}
			return
		}
	}
}

func (s *WebSocketServer) handleMessage(ctx context.Context, connID domain.ConnID, msg envelope) error {
	if msg.Type == "" {
		return fmt.Errorf("%w: event type is required", domain.ErrMalformedPayload)
	}

	switch msg.Type {
	case eventSessionInfo:
		return s.handleSessionInfo(connID, msg)
	case eventCreateRoom, eventJoinRoom:
		return s.handleJoin(connID, msg)
	case eventLeaveRoom:
		return s.handleLeave(connID, msg)
	case eventOffer, eventAnswer, eventICECandidate:
		return s.handleNegotiation(connID, msg)
	case eventMediaPermissions:
		return s.handleMediaPermissions(connID, msg)
	case eventSpeechToText:
		return s.handleSpeechToText(ctx, connID, msg)
	case eventTextToSpeech:
		return s.handleTextToSpeech(ctx, connID, msg)
	default:
		return fmt.Errorf("unknown event type %q", msg.Type)
	}
}

func (s *WebSocketServer) handleSessionInfo(connID domain.ConnID, msg envelope) error {
	var payload SessionInfoPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if err := validation.ValidateIdentity(payload.Identity); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if payload.RoomID != "" {
		if err := validation.ValidateRoomID(payload.RoomID); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
		}
	}

	err := s.coordinator.RegisterSession(connID, domain.Identity(payload.Identity), domain.RoomID(payload.RoomID))
	if errors.Is(err, domain.ErrRoomFull) {
		// The stored room filled up while the client was away. The
		// session itself is registered; only the rejoin is refused.
		return s.table.Send(connID, services.EventRoomFull, services.RoomFullPayload{
			RoomID: domain.RoomID(payload.RoomID),
		})
	}
	return err
}

func (s *WebSocketServer) handleJoin(connID domain.ConnID, msg envelope) error {
	var payload RoomPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if err := validation.ValidateRoomID(payload.RoomID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	err := s.coordinator.Join(connID, domain.RoomID(payload.RoomID))
	if errors.Is(err, domain.ErrRoomFull) {
		return s.table.Send(connID, services.EventRoomFull, services.RoomFullPayload{
			RoomID: domain.RoomID(payload.RoomID),
		})
	}
	return err
}

func (s *WebSocketServer) handleLeave(connID domain.ConnID, msg envelope) error {
	var payload RoomPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return s.coordinator.Leave(connID, domain.RoomID(payload.RoomID))
}

func (s *WebSocketServer) handleNegotiation(connID domain.ConnID, msg envelope) error {
	identity, room, ok := s.coordinator.SessionOf(connID)
	if !ok {
		return domain.ErrUnknownIdentity
	}
	if room == "" {
		return fmt.Errorf("dropping %s: connection is in no room", msg.Type)
	}
	return s.relay.ForwardNegotiation(msg.Type, msg.Payload, room, connID, identity)
}

func (s *WebSocketServer) handleMediaPermissions(connID domain.ConnID, msg envelope) error {
	identity, room, ok := s.coordinator.SessionOf(connID)
	if !ok {
		return domain.ErrUnknownIdentity
	}
	if room == "" {
		return fmt.Errorf("dropping media permissions: connection is in no room")
	}

	var body map[string]any
	if err := json.Unmarshal(msg.Payload, &body); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if body == nil {
		// A literal null payload unmarshals to a nil map.
		return fmt.Errorf("%w: media permissions payload is empty", domain.ErrMalformedPayload)
	}
	body["userId"] = connID
	body["identity"] = identity
	body["roomId"] = room

	s.relay.BroadcastToRoomExcept(room, connID, services.EventUserMediaPermissions, body)
	return nil
}

func (s *WebSocketServer) handleSpeechToText(ctx context.Context, connID domain.ConnID, msg envelope) error {
	identity, room, ok := s.coordinator.SessionOf(connID)
	if !ok {
		return domain.ErrUnknownIdentity
	}
	if room == "" {
		return fmt.Errorf("dropping audio chunk: connection is in no room")
	}
	if s.speech == nil {
		s.logger.Debugw("speech disabled, dropping audio chunk", "conn_id", connID)
		return nil
	}

	var payload SpeechToTextPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if err := validation.ValidateLanguage(payload.Language); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	audio, err := base64.StdEncoding.DecodeString(payload.AudioChunk)
	if err != nil {
		return fmt.Errorf("%w: audio chunk is not valid base64: %v", domain.ErrMalformedPayload, err)
	}
	if len(audio) == 0 {
		return fmt.Errorf("%w: empty audio chunk", domain.ErrMalformedPayload)
	}

	transcript, err := s.speech.Transcribe(ctx, audio, payload.MimeType, payload.Language)
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}
	if transcript == "" {
		s.logger.Debugw("empty transcript, nothing to relay", "conn_id", connID)
		return nil
	}

	s.relay.RelayTranscription(room, connID, identity, transcript, payload.Language)
	return nil
}

func (s *WebSocketServer) handleTextToSpeech(ctx context.Context, connID domain.ConnID, msg envelope) error {
	var payload TextToSpeechPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if payload.Text == "" {
		s.relay.RelaySynthesisError(connID, "text is required", "")
		return nil
	}
	if err := validation.ValidateLanguage(payload.Language); err != nil {
		s.relay.RelaySynthesisError(connID, "invalid language", err.Error())
		return nil
	}
	if s.speech == nil {
		s.relay.RelaySynthesisError(connID, "speech synthesis is unavailable", "")
		return nil
	}

	audio, err := s.speech.Synthesize(ctx, payload.Text, payload.Language)
	if err != nil {
		s.logger.Warnw("synthesis failed", "conn_id", connID, "error", err)
		s.relay.RelaySynthesisError(connID, "speech synthesis failed", err.Error())
		return nil
	}

	s.relay.RelaySynthesizedSpeech(connID, base64.StdEncoding.EncodeToString(audio), payload.Language)
	return nil
}
