package signal

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// envelope is the wire frame in both directions.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// client wraps a websocket connection with a write lock. gorilla
// permits one concurrent writer; broadcasts and the ping ticker both
// write, so every outbound frame goes through this lock.
type client struct {
	id   domain.ConnID
	conn *websocket.Conn

	writeTimeout time.Duration
	writeMu      sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// ConnTable assigns server-generated connection IDs and delivers
// outbound events. It is the process-wide ports.ConnectionGateway.
type ConnTable struct {
	clients      map[domain.ConnID]*client
	writeTimeout time.Duration
	mu           sync.RWMutex
}

func NewConnTable(writeTimeout time.Duration) *ConnTable {
	return &ConnTable{
		clients:      make(map[domain.ConnID]*client),
		writeTimeout: writeTimeout,
	}
}

var _ ports.ConnectionGateway = (*ConnTable)(nil)

// Add registers the websocket and mints its connection ID.
func (t *ConnTable) Add(conn *websocket.Conn) domain.ConnID {
	id := domain.ConnID(uuid.NewString())

	t.mu.Lock()
	t.clients[id] = &client{id: id, conn: conn, writeTimeout: t.writeTimeout}
	t.mu.Unlock()

	return id
}

func (t *ConnTable) Remove(id domain.ConnID) {
	t.mu.Lock()
	delete(t.clients, id)
	t.mu.Unlock()
}

func (t *ConnTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clients)
}

// Send marshals the event into the wire envelope and writes it to the
// connection. Unknown connection IDs report an error so relays can
// skip dead members.
func (t *ConnTable) Send(id domain.ConnID, event string, payload any) error {
	t.mu.RLock()
	cl, exists := t.clients[id]
	t.mu.RUnlock()

	if !exists {
		return fmt.Errorf("send %s: %w", event, domain.ErrUnknownConnection)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(envelope{Type: event, Payload: body})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event, err)
	}

	return cl.write(websocket.TextMessage, frame)
}

// Ping sends a control ping on the connection.
func (t *ConnTable) Ping(id domain.ConnID) error {
	t.mu.RLock()
	cl, exists := t.clients[id]
	t.mu.RUnlock()

	if !exists {
		return domain.ErrUnknownConnection
	}
	return cl.write(websocket.PingMessage, nil)
}
