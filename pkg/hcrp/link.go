package hcrp

import (
	"errors"

	"github.com/backkem/hcrp/pkg/profile"
	"github.com/backkem/hcrp/pkg/session"
	"github.com/backkem/hcrp/pkg/transport"
)

// link is the session.Link of one engine session. Sessions call it with
// their entry lock held.
type link struct {
	e   *Engine
	ent *entry
}

var _ session.Link = (*link)(nil)

// Connect opens a transport channel to the session's peer. The route is
// recorded before the routes lock is released, so the confirm always finds
// it. A stale channel of the same kind is replaced; its late callbacks are
// ignored.
func (l *link) Connect(kind profile.ChannelKind) error {
	e := l.e
	e.routesMu.Lock()
	defer e.routesMu.Unlock()

	if l.ent.peer == "" {
		return ErrNoPeer
	}
	ch, err := e.tr.Connect(e.ctx, l.ent.peer, kind)
	if err != nil {
		return err
	}
	l.ent.chans[kind] = ch
	e.routes[ch] = route{id: l.ent.id, kind: kind}
	return nil
}

func (l *link) channel(kind profile.ChannelKind) profile.ChannelID {
	l.e.routesMu.Lock()
	defer l.e.routesMu.Unlock()
	return l.ent.chans[kind]
}

func (l *link) Respond(kind profile.ChannelKind, accept bool) error {
	ch := l.channel(kind)
	if ch == 0 {
		return ErrNoChannel
	}
	return l.e.tr.Respond(ch, accept)
}

func (l *link) Send(kind profile.ChannelKind, data []byte) error {
	ch := l.channel(kind)
	if ch == 0 {
		return ErrNoChannel
	}
	return l.e.tr.Send(ch, data)
}

// Disconnect closes the channel. A channel the transport already dropped
// counts as closed; its OnDisconnected is on the way.
func (l *link) Disconnect(kind profile.ChannelKind) error {
	ch := l.channel(kind)
	if ch == 0 {
		return nil
	}
	err := l.e.tr.Disconnect(ch)
	if errors.Is(err, transport.ErrChannelNotFound) || errors.Is(err, transport.ErrClosed) {
		return nil
	}
	return err
}
