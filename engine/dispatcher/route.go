package dispatcher

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/consts"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/router"
	"github.com/roomsync/roomsync/engine/rslog"
	"github.com/roomsync/roomsync/engine/shard"
)

type fanoutKey struct {
	userID    common.ID
	requestID uint64
}

// fanout is a user message delivered to every shard, answered once all shards acked
type fanout struct {
	ev       *events.Event
	replies  [][]byte
	acked    []bool
	waiting  int
	err      string
	deadline time.Time
}

// routeEvent returns the handler of the messages of cp that the root does not handle itself
func (d *Dispatcher) routeEvent(cp *ClientProxy) events.Handler {
	return func(ev *events.Event) {
		d.route(cp, ev)
	}
}

func (d *Dispatcher) route(cp *ClientProxy, ev *events.Event) {
	switch ev.Type {
	case proto.MT_AUTHENTICATE:
		d.handleAuth(cp, ev)
		return
	case proto.MT_PONG, proto.MT_ERROR:
		return
	}
	uid := cp.UserID()
	if uid.IsNil() {
		d.failEvent(cp, ev, ErrNotAuthenticated)
		return
	}

	env := ev.Envelope
	switch ev.Type {
	case proto.MT_ROOM_CREATE:
		d.forward(consts.ROOM_CREATION_SHARD, uid, env)
		return
	case proto.MT_ROOM_JOIN, proto.MT_ROOM_LEAVE:
		var req proto.RoomRequest
		if err := ev.Decode(&req); err != nil {
			d.failEvent(cp, ev, err)
			return
		}
		d.forwardToOwner(cp, ev, d.roomShards, req.RoomID)
		return
	}

	switch env.Scope.Type {
	case common.ScopeUser:
		d.fanout(cp, ev)
	case common.ScopeRoom:
		d.forwardToOwner(cp, ev, d.roomShards, env.Scope.ID)
	case common.ScopeNetworkEntity:
		d.forwardToOwner(cp, ev, d.entityShards, env.Scope.ID)
	case common.ScopePlayer:
		roomID, ok := d.playerRooms[env.Scope.ID]
		if !ok {
			d.failEvent(cp, ev, errors.Wrapf(ErrNoSuchTarget, "%s", env.Scope))
			return
		}
		d.forwardToOwner(cp, ev, d.roomShards, roomID)
	default:
		d.failEvent(cp, ev, errors.Wrapf(ErrNoSuchTarget, "%s", env.Scope))
	}
}

func (d *Dispatcher) forward(shardIndex int, uid common.ID, env *proto.Envelope) {
	if consts.DEBUG_ROUTING {
		rslog.Debugf("%s: %s of user %s -> shard %d", d, env, uid, shardIndex)
	}
	d.shards[shardIndex].Post(&shard.ClientMessage{UserID: uid, Env: env})
}

func (d *Dispatcher) forwardToOwner(cp *ClientProxy, ev *events.Event, table map[common.ID]int, id common.ID) {
	shardIndex, ok := table[id]
	if !ok {
		d.failEvent(cp, ev, errors.Wrapf(ErrNoSuchTarget, "%s %s", ev.Type, id))
		return
	}
	d.forward(shardIndex, cp.UserID(), ev.Envelope)
}

// fanout delivers a user scoped message to every shard exactly once. Requests are answered
// with the replies of all shards, in shard order, once every shard acked.
func (d *Dispatcher) fanout(cp *ClientProxy, ev *events.Event) {
	uid := cp.UserID()
	env := ev.Envelope
	isRequest := ev.IsRequest()
	if isRequest {
		key := fanoutKey{uid, env.ID}
		if _, ok := d.fanouts[key]; ok {
			ev.Fail(errors.Errorf("duplicate request id %d", env.ID))
			return
		}
		d.fanouts[key] = &fanout{
			ev:       ev,
			replies:  make([][]byte, len(d.shards)),
			acked:    make([]bool, len(d.shards)),
			waiting:  len(d.shards),
			deadline: time.Now().Add(d.cfg.RequestTimeout),
		}
	}
	for _, s := range d.shards {
		s.Post(&shard.ClientMessage{UserID: uid, Env: env, Fanout: isRequest})
	}
}

func (d *Dispatcher) handleFanoutAck(m *shard.FanoutAck) {
	key := fanoutKey{m.UserID, m.RequestID}
	f := d.fanouts[key]
	if f == nil || m.Shard < 0 || m.Shard >= len(f.acked) {
		return
	}
	if f.acked[m.Shard] {
		rslog.Warnf("%s: shard %d acked %s#%d twice", d, m.Shard, f.ev.Type, m.RequestID)
		return
	}
	f.acked[m.Shard] = true
	f.replies[m.Shard] = m.Data
	if m.Error != "" && f.err == "" {
		f.err = m.Error
	}
	f.waiting -= 1
	if f.waiting > 0 {
		return
	}

	delete(d.fanouts, key)
	if f.err != "" {
		f.ev.Fail(errors.New(f.err))
		return
	}
	f.ev.Reply(proto.FanoutReply{Replies: f.replies})
}

func (d *Dispatcher) sweepFanouts(now time.Time) {
	var expired []fanoutKey
	for key, f := range d.fanouts {
		if !now.Before(f.deadline) {
			expired = append(expired, key)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].requestID < expired[j].requestID
	})
	for _, key := range expired {
		f := d.fanouts[key]
		delete(d.fanouts, key)
		f.ev.Fail(errors.Wrapf(router.ErrRequestTimeout, "%s#%d", f.ev.Type, key.requestID))
	}
}

// handleAuth authenticates cp, the reply is sent when every shard knows the user
func (d *Dispatcher) handleAuth(cp *ClientProxy, ev *events.Event) {
	if !cp.userID.IsNil() {
		d.failEvent(cp, ev, ErrAlreadyAuthenticated)
		return
	}
	var req proto.AuthRequest
	if err := ev.Decode(&req); err != nil {
		d.failEvent(cp, ev, err)
		return
	}
	info, err := d.cfg.Authenticator.Authenticate(req)
	if err != nil {
		rslog.Warnf("%s: %s failed to authenticate: %v", d, cp, err)
		d.failEvent(cp, ev, err)
		return
	}
	if info.ID.IsNil() {
		info.ID = d.pool.NextID()
	}
	if other := d.users[info.ID]; other != nil {
		d.failEvent(cp, ev, errors.Wrapf(ErrAlreadyAuthenticated, "user %s is connected from %s", info.ID, other))
		return
	}

	cp.userID = info.ID
	cp.authing = true
	d.users[info.ID] = cp
	d.pendingAuths[info.ID] = &pendingAuth{cp: cp, ev: ev, waiting: len(d.shards)}
	for _, s := range d.shards {
		s.Post(&shard.ConnectUser{User: info})
	}
}

func (d *Dispatcher) handleUserConnected(m *shard.UserConnected) {
	pa := d.pendingAuths[m.UserID]
	if pa == nil {
		return
	}
	pa.waiting -= 1
	if pa.waiting > 0 {
		return
	}
	delete(d.pendingAuths, m.UserID)
	pa.cp.authing = false
	rslog.Infof("%s: %s authenticated as user %s", d, pa.cp, m.UserID)
	pa.ev.Reply(proto.AuthReply{UserID: m.UserID})
}
