// Package transport carries HCR channels between two devices.
//
// Each HCR channel (Control, Data or Notification) maps to one reliable,
// ordered connection: a pion test bridge for in-memory tests, a QUIC stream
// for IP networks. The side that opens a channel sends an Open frame naming
// the channel kind and waits for a Status frame; SDUs then travel in Data
// frames with their boundaries preserved.
//
// Transports never block a caller on the network: Connect returns a channel
// id at once and the outcome arrives through Handler.OnConnectConfirm.
package transport

import (
	"context"
	"net"

	"github.com/backkem/hcrp/pkg/profile"
)

// Handler receives channel events from a transport. Calls for one channel
// are made sequentially from a transport goroutine; implementations must not
// block for long.
type Handler interface {
	// OnConnectRequest announces a channel opened by the peer. The transport
	// waits for Respond before the channel carries data.
	OnConnectRequest(ch profile.ChannelID, kind profile.ChannelKind, peer string)

	// OnConnectConfirm reports the outcome of Connect.
	OnConnectConfirm(ch profile.ChannelID, status profile.OpenStatus)

	// OnReceive delivers one SDU.
	OnReceive(ch profile.ChannelID, data []byte)

	// OnDisconnected reports that an established or announced channel is gone,
	// whichever side closed it. It is called exactly once per channel.
	OnDisconnected(ch profile.ChannelID)
}

// Transport opens and carries HCR channels.
type Transport interface {
	// Connect starts opening a channel of the given kind to peer. The result
	// is reported through Handler.OnConnectConfirm.
	Connect(ctx context.Context, peer string, kind profile.ChannelKind) (profile.ChannelID, error)

	// Respond accepts or rejects a channel announced by OnConnectRequest.
	Respond(ch profile.ChannelID, accept bool) error

	// Send transmits one SDU of at most MaxSDU bytes.
	Send(ch profile.ChannelID, data []byte) error

	// Disconnect closes a channel. OnDisconnected follows.
	Disconnect(ch profile.ChannelID) error

	// Addr returns the address peers use to reach this transport.
	Addr() net.Addr

	// Close tears down every channel and stops the transport.
	Close() error
}
