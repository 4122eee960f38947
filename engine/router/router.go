// Package router turns envelopes into events on the right local object.
//
// A Router belongs to one connection (client side) or one event loop (root and shards) and
// is not goroutine-safe. It owns the correlation ids of the requests it sends, answers
// heartbeats, and dispatches everything else to the event stream of the scoped object and
// to the root event stream.
package router

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/consts"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/netutil"
	"github.com/roomsync/roomsync/engine/opmon"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/rslog"
	"github.com/roomsync/roomsync/engine/rsutils"
)

var (
	// ErrRequestTimeout fails requests not answered in time
	ErrRequestTimeout = errors.New("request timeout")
	// ErrConnectionClosed fails requests pending when the router closes
	ErrConnectionClosed = errors.New("connection closed")
	// ErrUnhandled answers requests nobody handled
	ErrUnhandled = errors.New("unhandled request")
)

// RemoteError is an error answered by the peer
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// SendFunc writes an envelope to a peer
type SendFunc func(env *proto.Envelope) error

// Resolver finds the event stream of the object with id in one namespace
type Resolver func(id common.ID) (*events.Emitter, bool)

// Callback receives the reply of a request, ev is nil when err is local (timeout, close)
type Callback func(err error, ev *events.Event)

// PendingCallback is a request waiting for its reply
type PendingCallback struct {
	ID       uint64
	Name     string
	Deadline time.Time
	callback Callback
}

// Stats are the heartbeat counters of the connection
type Stats struct {
	Latency       float64
	BandwidthIn   float64
	BandwidthOut  float64
	LastHeartbeat time.Time
	Heartbeats    uint64
}

// Router routes envelopes of one connection or loop
type Router struct {
	name      string
	packer    netutil.MsgPacker
	send      SendFunc
	root      *events.Emitter
	resolvers [common.ScopeNetworkEntity + 1]Resolver
	unhandled events.Handler
	nextID    uint64
	pending   map[uint64]*PendingCallback
	timeout   time.Duration
	stats     Stats
	closed    bool
}

// New creates a router, root is the process wide event stream (a new one if nil)
func New(name string, packer netutil.MsgPacker, send SendFunc, root *events.Emitter) *Router {
	if root == nil {
		root = events.NewEmitter()
	}
	return &Router{
		name:    name,
		packer:  packer,
		send:    send,
		root:    root,
		pending: map[uint64]*PendingCallback{},
		timeout: consts.REQUEST_TIMEOUT,
	}
}

func (r *Router) String() string {
	return fmt.Sprintf("Router<%s>", r.name)
}

// Root returns the root event stream
func (r *Router) Root() *events.Emitter {
	return r.root
}

// Packer returns the packer of envelopes and payloads
func (r *Router) Packer() netutil.MsgPacker {
	return r.packer
}

// SetResolver sets how ids of scope type st are resolved
func (r *Router) SetResolver(st common.ScopeType, resolver Resolver) {
	if !st.IsValid() {
		rslog.Panicf("%s.SetResolver: invalid scope type %s", r, st)
	}
	r.resolvers[st] = resolver
}

// SetUnhandled sets the handler of messages no typed handler recognizes
func (r *Router) SetUnhandled(h events.Handler) {
	r.unhandled = h
}

// SetTimeout sets how long requests wait for replies, 0 waits forever
func (r *Router) SetTimeout(d time.Duration) {
	r.timeout = d
}

// Stats returns the heartbeat counters
func (r *Router) Stats() Stats {
	return r.stats
}

// PendingCount returns the number of requests waiting for replies
func (r *Router) PendingCount() int {
	return len(r.pending)
}

// Send sends a message without expecting a reply
func (r *Router) Send(mt proto.MsgType, scope common.Scope, payload interface{}) error {
	env, err := proto.NewEnvelope(r.packer, mt, scope, payload)
	if err != nil {
		return err
	}
	return r.SendEnvelope(env)
}

// SendEnvelope sends a built envelope
func (r *Router) SendEnvelope(env *proto.Envelope) error {
	if r.closed {
		return ErrConnectionClosed
	}
	if consts.DEBUG_PACKETS {
		rslog.Debugf("%s: send %s", r, env)
	}
	return r.send(env)
}

// Request sends a message and calls cb exactly once with its reply, its timeout or the router closing
func (r *Router) Request(mt proto.MsgType, scope common.Scope, payload interface{}, cb Callback) (uint64, error) {
	if r.closed {
		return 0, ErrConnectionClosed
	}
	env, err := proto.NewEnvelope(r.packer, mt, scope, payload)
	if err != nil {
		return 0, err
	}

	r.nextID += 1
	env.ID = r.nextID
	pc := &PendingCallback{
		ID:       env.ID,
		Name:     env.Name,
		callback: cb,
	}
	if r.timeout > 0 {
		pc.Deadline = time.Now().Add(r.timeout)
	}
	r.pending[env.ID] = pc

	if err := r.SendEnvelope(env); err != nil {
		delete(r.pending, env.ID)
		return 0, err
	}
	return env.ID, nil
}

// HandleMessage decodes and dispatches raw data received from the peer, malformed data is dropped
func (r *Router) HandleMessage(data []byte) {
	env, err := proto.DecodeEnvelope(r.packer, data)
	if err != nil {
		rslog.Warnf("%s: drop message: %v", r, err)
		return
	}
	r.HandleEnvelope(env)
}

// HandleEnvelope dispatches an envelope received from the peer, replies go back to the peer
func (r *Router) HandleEnvelope(env *proto.Envelope) {
	r.Dispatch(env, 0, r.send)
}

// Dispatch dispatches an envelope sent by user from whose replies are sent by replyTo, it
// returns the dispatched event or nil if the envelope was consumed by the router
func (r *Router) Dispatch(env *proto.Envelope, from common.ID, replyTo SendFunc) *events.Event {
	mt, ok := env.Type()
	if !ok {
		rslog.Warnf("%s: drop %s: unknown message name", r, env)
		return nil
	}
	if consts.DEBUG_PACKETS {
		rslog.Debugf("%s: recv %s", r, env)
	}

	if env.Reply {
		r.handleReply(mt, env)
		return nil
	}

	if mt == proto.MT_PING {
		if !r.handlePing(env, replyTo) {
			return nil
		}
	}

	var responder events.Responder
	if env.IsRequest() {
		responder = r.responder(env, replyTo)
	}
	ev := events.NewEvent(mt, env, from, r.packer, responder)

	var target *events.Emitter
	if resolve := r.resolvers[env.Scope.Type]; resolve != nil && !env.Scope.ID.IsNil() {
		if em, ok := resolve(env.Scope.ID); ok {
			target = em
		} else if consts.DEBUG_PACKETS {
			rslog.Debugf("%s: %s not found, skip scoped dispatch", r, env.Scope)
		}
	}

	recognized := r.root.Handles(mt) || (target != nil && target.Handles(mt))
	if target != nil {
		target.Emit(ev)
	}
	r.root.Emit(ev)

	if !recognized && mt != proto.MT_PING {
		if r.unhandled != nil {
			r.unhandled(ev)
		} else if ev.IsRequest() {
			ev.Fail(errors.Wrapf(ErrUnhandled, "%s", env.Name))
		}
	}
	return ev
}

func (r *Router) responder(env *proto.Envelope, replyTo SendFunc) events.Responder {
	return func(err error, payload interface{}) {
		reply := &proto.Envelope{
			Name:  env.Name,
			Scope: env.Scope,
			ID:    env.ID,
			Reply: true,
		}
		if err != nil {
			reply.Error = err.Error()
		} else if payload != nil {
			data, perr := r.packer.PackMsg(payload, nil)
			if perr != nil {
				rslog.Errorf("%s: pack reply of %s failed: %v", r, env, perr)
				reply.Error = "internal error"
			} else {
				reply.Data = data
			}
		}
		if err := replyTo(reply); err != nil {
			rslog.Warnf("%s: reply %s failed: %v", r, env, err)
		}
	}
}

func (r *Router) handleReply(mt proto.MsgType, env *proto.Envelope) {
	pc, ok := r.pending[env.ID]
	if !ok {
		rslog.Warnf("%s: %s matches no pending request, dropped", r, env)
		return
	}
	delete(r.pending, env.ID)

	var err error
	if env.Error != "" {
		err = &RemoteError{Message: env.Error}
	}
	ev := events.NewEvent(mt, env, 0, r.packer, nil)
	rsutils.RunPanicless(func() {
		pc.callback(err, ev)
	})
}

func (r *Router) handlePing(env *proto.Envelope, replyTo SendFunc) bool {
	var ping proto.PingPayload
	if err := env.DecodeData(r.packer, &ping); err != nil {
		rslog.Warnf("%s: drop malformed ping: %v", r, err)
		return false
	}

	pong, err := proto.NewEnvelope(r.packer, proto.MT_PONG, env.Scope, proto.PongPayload{Nonce: ping.Nonce})
	if err != nil {
		rslog.Errorf("%s: build pong failed: %v", r, err)
		return false
	}
	if err := replyTo(pong); err != nil {
		rslog.Warnf("%s: send pong failed: %v", r, err)
	}

	r.stats.Latency = ping.Latency
	r.stats.BandwidthIn = ping.BandwidthIn
	r.stats.BandwidthOut = ping.BandwidthOut
	r.stats.LastHeartbeat = time.Now()
	r.stats.Heartbeats += 1

	sink := opmon.GetSink()
	sink.ObserveLatency(env.Scope.String(), ping.Latency)
	if ping.BandwidthIn != 0 || ping.BandwidthOut != 0 {
		sink.ObserveBandwidth(env.Scope.String(), ping.BandwidthIn, ping.BandwidthOut)
	}
	return true
}

// SweepExpired fails the requests whose deadline passed, returns how many were failed
func (r *Router) SweepExpired(now time.Time) int {
	var expired []*PendingCallback
	for _, pc := range r.pending {
		if !pc.Deadline.IsZero() && !now.Before(pc.Deadline) {
			expired = append(expired, pc)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ID < expired[j].ID
	})
	for _, pc := range expired {
		delete(r.pending, pc.ID)
		rslog.Warnf("%s: request %s#%d timed out", r, pc.Name, pc.ID)
		cb := pc.callback
		rsutils.RunPanicless(func() {
			cb(errors.Wrapf(ErrRequestTimeout, "%s#%d", pc.Name, pc.ID), nil)
		})
	}
	return len(expired)
}

// Close fails every pending request, later sends fail with ErrConnectionClosed
func (r *Router) Close() {
	if r.closed {
		return
	}
	r.closed = true
	pending := make([]*PendingCallback, 0, len(r.pending))
	for _, pc := range r.pending {
		pending = append(pending, pc)
	}
	r.pending = map[uint64]*PendingCallback{}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].ID < pending[j].ID
	})
	for _, pc := range pending {
		cb := pc.callback
		rsutils.RunPanicless(func() {
			cb(ErrConnectionClosed, nil)
		})
	}
}
