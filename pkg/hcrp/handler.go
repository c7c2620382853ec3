package hcrp

import (
	"github.com/backkem/hcrp/pkg/profile"
	"github.com/backkem/hcrp/pkg/session"
)

// OnConnectRequest routes an incoming channel to a session: the session
// already bound to peer, or for Control a listening server session. Channels
// nobody can take are refused.
func (e *Engine) OnConnectRequest(ch profile.ChannelID, kind profile.ChannelKind, peer string) {
	// A listening transport can announce a channel before New returns.
	<-e.ready

	ent, bound := e.bindIncoming(ch, kind, peer)
	if ent == nil {
		if e.log != nil {
			e.log.Infof("refusing %v channel from %s: no session", kind, peer)
		}
		if err := e.tr.Respond(ch, false); err != nil && e.log != nil {
			e.log.Warnf("refuse %v channel from %s: %v", kind, peer, err)
		}
		return
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.closed {
		if err := e.tr.Respond(ch, false); err != nil && e.log != nil {
			e.log.Warnf("%v: refuse %v channel: %v", ent.id, kind, err)
		}
		return
	}
	if bound {
		if e.log != nil {
			e.log.Infof("%v: bound to %s", ent.id, peer)
		}
		e.publish(SessionBound{Meta: session.Meta{Session: ent.id}, Peer: peer})
	}
	if err := ent.sess.OnConnectRequest(kind); err != nil && e.log != nil {
		e.log.Warnf("%v: %v connect request: %v", ent.id, kind, err)
	}
	e.afterStep(ent)
}

// bindIncoming picks the session for an incoming channel and records the
// route. bound reports that a listening server session was bound to peer.
func (e *Engine) bindIncoming(ch profile.ChannelID, kind profile.ChannelKind, peer string) (ent *entry, bound bool) {
	e.routesMu.Lock()
	defer e.routesMu.Unlock()

	prefer := profile.RoleServer
	if kind == profile.ChannelNotification {
		prefer = profile.RoleClient
	}

	e.mu.RLock()
	var fallback, listening *entry
	for _, cand := range e.sessions {
		switch {
		case cand.peer == peer && cand.role == prefer:
			if ent == nil || cand.id < ent.id {
				ent = cand
			}
		case cand.peer == peer:
			if fallback == nil || cand.id < fallback.id {
				fallback = cand
			}
		case cand.peer == "" && cand.role == profile.RoleServer:
			if listening == nil || cand.id < listening.id {
				listening = cand
			}
		}
	}
	e.mu.RUnlock()

	if ent == nil {
		ent = fallback
	}
	if ent == nil && kind == profile.ChannelControl && listening != nil {
		ent = listening
		ent.peer = peer
		bound = true
	}
	if ent == nil || ent.chans[kind] != 0 {
		return nil, false
	}

	ent.chans[kind] = ch
	e.routes[ch] = route{id: ent.id, kind: kind}
	return ent, bound
}

// withChannel runs fn under the lock of the session that owns ch, provided
// ch is still that session's current channel of its kind.
func (e *Engine) withChannel(ch profile.ChannelID, fn func(ent *entry, kind profile.ChannelKind)) {
	e.routesMu.Lock()
	r, ok := e.routes[ch]
	e.routesMu.Unlock()
	if !ok {
		return
	}
	ent := e.lookup(r.id)
	if ent == nil {
		return
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.closed {
		return
	}
	e.routesMu.Lock()
	current := ent.chans[r.kind] == ch
	e.routesMu.Unlock()
	if !current {
		return
	}
	fn(ent, r.kind)
	e.afterStep(ent)
}

// forget drops the route of a channel that no longer exists, clearing the
// session's reference if it still points at it.
func (e *Engine) forget(ent *entry, kind profile.ChannelKind, ch profile.ChannelID) {
	e.routesMu.Lock()
	delete(e.routes, ch)
	if ent != nil && ent.chans[kind] == ch {
		ent.chans[kind] = 0
	}
	e.routesMu.Unlock()
}

// OnConnectConfirm completes a connect started by a session.
func (e *Engine) OnConnectConfirm(ch profile.ChannelID, status profile.OpenStatus) {
	e.withChannel(ch, func(ent *entry, kind profile.ChannelKind) {
		if status != profile.OpenSuccess {
			e.forget(ent, kind, ch)
		}
		ent.sess.OnConnectConfirm(kind, status)
	})
	if status != profile.OpenSuccess {
		e.forget(nil, 0, ch)
	}
}

// OnReceive delivers an SDU to the session owning the channel.
func (e *Engine) OnReceive(ch profile.ChannelID, data []byte) {
	e.withChannel(ch, func(ent *entry, kind profile.ChannelKind) {
		ent.sess.OnReceive(kind, data)
	})
}

// OnDisconnected reports a closed channel to its session.
func (e *Engine) OnDisconnected(ch profile.ChannelID) {
	e.withChannel(ch, func(ent *entry, kind profile.ChannelKind) {
		e.forget(ent, kind, ch)
		ent.sess.OnDisconnected(kind)
	})
	e.forget(nil, 0, ch)
}
