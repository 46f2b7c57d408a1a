package repositories

import (
	"context"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/internal/protocol"
)

// TransportHandler receives the observable events of a realtime transport.
// Calls for one connection are never concurrent and OnMessage follows delivery order.
type TransportHandler interface {
	OnOpen()
	OnMessage(msg protocol.Inbound)
	// OnClose is called once the transport is closed for good. err is nil for a requested close.
	OnClose(err error)
	OnError(err error)
}

// Transport owns the realtime connection of one conversation
type Transport interface {
	Open(ctx context.Context, conversationID string) error
	// Send is only valid while the transport is open
	Send(msg protocol.Outbound) error
	State() entities.TransportState
	IsOpen() bool
	Close() error
}
