package ports

import "parley/internal/core/domain"

// ConnectionGateway delivers an event to a single live connection.
// The coordinator and relay never hold a transport handle directly;
// they address connections by ConnID through this gateway. Sending to
// a connection that has already dropped returns an error the caller
// is free to ignore for best-effort broadcasts.
type ConnectionGateway interface {
	Send(conn domain.ConnID, event string, payload any) error
}
