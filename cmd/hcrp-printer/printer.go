package main

import (
	"time"

	"github.com/pion/logging"

	"github.com/backkem/hcrp/pkg/hcrp"
	"github.com/backkem/hcrp/pkg/pdu"
	"github.com/backkem/hcrp/pkg/profile"
	"github.com/backkem/hcrp/pkg/session"
)

// readyStatus is reported for every LPT status request.
const readyStatus = pdu.LPTSelect | pdu.LPTNotError

// job counts what one host has sent since it connected.
type job struct {
	peer  string
	bytes int
	sdus  int
}

// responder answers the requests hosts send to the printer's sessions.
type responder struct {
	engine    *hcrp.Engine
	creditCap uint32
	keepAlive time.Duration
	log       logging.LeveledLogger

	jobs map[profile.HCRID]*job
}

func newResponder(engine *hcrp.Engine, cfg Config, log logging.LeveledLogger) *responder {
	return &responder{
		engine:    engine,
		creditCap: cfg.CreditCap,
		keepAlive: cfg.MaxNotificationTimeout,
		log:       log,
		jobs:      make(map[profile.HCRID]*job),
	}
}

// handle reacts to one engine event. Replies are never made for events a
// host's reply produced.
func (r *responder) handle(ev session.Event) {
	id := ev.SessionID()
	switch ev := ev.(type) {
	case hcrp.SessionBound:
		r.jobs[id] = &job{peer: ev.Peer}
		r.log.Infof("%v: host %s connected", id, ev.Peer)
	case hcrp.SessionReleased:
		r.finish(id)
	case hcrp.SessionClosed:
		r.finish(id)

	case session.ConnectRequest:
		r.reply(id, ev.Kind.String()+" connect", func(s *session.Session) error {
			return s.RespondConnect(ev.Kind, true)
		})
	case session.DataReceived:
		if j := r.jobs[id]; j != nil {
			j.bytes += len(ev.Data)
			j.sdus++
		}
		r.log.Debugf("%v: received %d bytes", id, len(ev.Data))
	case session.DecodeFailed:
		r.log.Warnf("%v: bad %v SDU: %v", id, ev.Kind, ev.Err)

	case session.CreditGranted:
		if isRequest(ev.Control) {
			r.reply(id, "credit grant", func(s *session.Session) error {
				return s.CreditGrantReply(pdu.ResultSuccess)
			})
		}
	case session.CreditRequested:
		if isRequest(ev.Control) {
			r.reply(id, "credit request", func(s *session.Session) error {
				return s.CreditRequestReply(pdu.ResultSuccess, s.DecideCredit(r.creditCap, r.creditCap))
			})
		}
	case session.CreditReturned:
		if isRequest(ev.Control) {
			r.reply(id, "credit return", func(s *session.Session) error {
				return s.CreditReturnReply(pdu.ResultSuccess)
			})
		}
	case session.CreditQueried:
		if isRequest(ev.Control) {
			if ev.Desynchronized {
				r.log.Warnf("%v: host believes %d credit, granted %d", id, ev.Believed, ev.Authoritative)
			}
			r.reply(id, "credit query", func(s *session.Session) error {
				return s.CreditQueryReply(pdu.ResultSuccess)
			})
		}
	case session.LPTStatusRequested:
		if isRequest(ev.Control) {
			r.reply(id, "LPT status", func(s *session.Session) error {
				return s.GetLPTStatusReply(pdu.ResultSuccess, readyStatus)
			})
		}
	case session.Get1284IDRequested:
		if isRequest(ev.Control) {
			r.reply(id, "1284 id", func(s *session.Session) error {
				return s.Get1284IDReply(pdu.ResultSuccess)
			})
		}
	case session.SoftResetRequested:
		if isRequest(ev.Control) {
			r.reply(id, "soft reset", func(s *session.Session) error {
				return s.SoftResetReply(pdu.ResultSuccess)
			})
		}
	case session.HardResetRequested:
		if isRequest(ev.Control) {
			r.reply(id, "hard reset", func(s *session.Session) error {
				return s.HardResetReply(pdu.ResultSuccess)
			})
		}
	case session.RegisterNotificationRequested:
		if isRequest(ev.Control) {
			r.reply(id, "notification registration", func(s *session.Session) error {
				return s.RegisterNotificationReply(pdu.ResultSuccess)
			})
		}
	case session.ConnectionAliveRequested:
		if isRequest(ev.Control) {
			r.reply(id, "connection alive", func(s *session.Session) error {
				return s.NotificationConnectionAliveReply(pdu.ResultSuccess, r.keepAlive)
			})
		}
	case session.VendorSpecificRequest:
		r.reply(id, "vendor request", func(s *session.Session) error {
			return s.VendorSpecificReply(nil)
		})

	case session.TransactionTimeout:
		r.log.Warnf("%v: %v tid=%d abandoned", id, ev.PDUID, ev.TransactionID)
	case session.RegistrationExpired:
		r.log.Infof("%v: notification context %d expired", id, ev.ContextID)
	}
}

func isRequest(c session.Control) bool {
	return c.Direction == pdu.DirectionRequest
}

func (r *responder) reply(id profile.HCRID, what string, fn func(s *session.Session) error) {
	if err := r.engine.Session(id, fn); err != nil {
		r.log.Warnf("%v: %s reply: %v", id, what, err)
	}
}

func (r *responder) finish(id profile.HCRID) {
	j := r.jobs[id]
	if j == nil {
		return
	}
	delete(r.jobs, id)
	r.log.Infof("%v: host %s left after %d bytes in %d SDUs", id, j.peer, j.bytes, j.sdus)
}
