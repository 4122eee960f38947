// Package dispatcher implements the root of the server.
//
// The root accepts client connections, authenticates them and routes their messages to the
// shard owning the addressed object. It keeps the routing tables (room, network entity and
// player to shard, user to connection) current from the ownership notifications of the
// shards, and writes what the shards send to the right connections. Every table is only
// touched by the root loop.
package dispatcher

import (
	"fmt"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/auth"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/consts"
	"github.com/roomsync/roomsync/engine/entity"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/idpool"
	"github.com/roomsync/roomsync/engine/netutil"
	"github.com/roomsync/roomsync/engine/opmon"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/rslog"
	"github.com/roomsync/roomsync/engine/rsutils"
	"github.com/roomsync/roomsync/engine/scene"
	"github.com/roomsync/roomsync/engine/shard"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	timer "github.com/xiaonanln/goTimer"
)

var (
	// ErrNoSuchTarget is answered when no shard owns the addressed object
	ErrNoSuchTarget = errors.New("no such target")
	// ErrNotAuthenticated is answered to messages sent before authentication completes
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAlreadyAuthenticated is answered to a second authentication of a connection or user
	ErrAlreadyAuthenticated = errors.New("already authenticated")
)

// Config configures the root
type Config struct {
	// Shards is the number of shards, the number of CPUs if 0
	Shards        int
	Packer        netutil.MsgPacker
	Loader        scene.Loader
	Authenticator auth.Authenticator
	// Setup installs the application handlers on the world of every shard
	Setup            func(index int, w *entity.World)
	HeartbeatTimeout time.Duration
	RequestTimeout   time.Duration
}

type proxyConnected struct {
	cp *ClientProxy
}

type proxyMessage struct {
	cp   *ClientProxy
	data []byte
}

type proxyClosed struct {
	cp *ClientProxy
}

type rootTick struct{}

type pendingAuth struct {
	cp      *ClientProxy
	ev      *events.Event
	waiting int
}

// Dispatcher is the root
type Dispatcher struct {
	cfg    Config
	packer netutil.MsgPacker
	pool   *idpool.Pool
	shards []*shard.Shard
	queue  *xnsyncutil.SyncQueue
	root   *events.Emitter
	errors chan error

	proxies      map[common.ConnID]*ClientProxy
	users        map[common.ID]*ClientProxy
	roomShards   map[common.ID]int
	entityShards map[common.ID]int
	playerRooms  map[common.ID]common.ID
	pendingAuths map[common.ID]*pendingAuth
	fanouts      map[fanoutKey]*fanout

	timers      []*timer.Timer
	stopTicker  chan struct{}
	terminating xnsyncutil.AtomicBool
	terminated  *xnsyncutil.OneTimeCond
}

// New creates the root and its shards
func New(cfg Config) *Dispatcher {
	if cfg.Shards <= 0 {
		cfg.Shards = runtime.NumCPU()
	}
	if cfg.Packer == nil {
		cfg.Packer = netutil.MSG_PACKER
	}
	if cfg.Loader == nil {
		cfg.Loader = scene.NewLevelLoader()
	}
	if cfg.Authenticator == nil {
		cfg.Authenticator = auth.GuestAuthenticator{}
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = consts.CLIENT_HEARTBEAT_TIMEOUT
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = consts.REQUEST_TIMEOUT
	}

	d := &Dispatcher{
		cfg:          cfg,
		packer:       cfg.Packer,
		pool:         idpool.New(),
		queue:        xnsyncutil.NewSyncQueue(),
		root:         events.NewEmitter(),
		errors:       make(chan error, 100),
		proxies:      map[common.ConnID]*ClientProxy{},
		users:        map[common.ID]*ClientProxy{},
		roomShards:   map[common.ID]int{},
		entityShards: map[common.ID]int{},
		playerRooms:  map[common.ID]common.ID{},
		pendingAuths: map[common.ID]*pendingAuth{},
		fanouts:      map[fanoutKey]*fanout{},
		stopTicker:   make(chan struct{}),
		terminated:   xnsyncutil.NewOneTimeCond(),
	}
	d.root.On(proto.MT_PING, d.handlePing)

	shardCfg := shard.Config{Packer: cfg.Packer, Loader: cfg.Loader, Setup: cfg.Setup}
	for i := 0; i < cfg.Shards; i++ {
		s := shard.New(i, shardCfg, d.post)
		s.Post(&shard.Init{Pool: d.pool})
		d.shards = append(d.shards, s)
	}
	return d
}

func (d *Dispatcher) String() string {
	return fmt.Sprintf("Dispatcher<S%d|C%d|R%d>", len(d.shards), len(d.proxies), len(d.roomShards))
}

// Shards returns the shards
func (d *Dispatcher) Shards() []*shard.Shard {
	return d.shards
}

// Errors returns the faults recovered by the root and the shards
func (d *Dispatcher) Errors() <-chan error {
	return d.errors
}

// Events returns the root event stream, it only sees the messages the root handles itself
func (d *Dispatcher) Events() *events.Emitter {
	return d.root
}

func (d *Dispatcher) post(msg interface{}) {
	d.queue.Push(msg)
}

// Call runs f on the root loop
func (d *Dispatcher) Call(f func()) {
	d.queue.Push(f)
}

// Start starts the shards and the root loop
func (d *Dispatcher) Start() {
	for _, s := range d.shards {
		s.Start()
	}
	d.timers = append(d.timers,
		timer.AddTimer(consts.HEARTBEAT_CHECK_INTERVAL, d.checkHeartbeats),
		timer.AddTimer(consts.PENDING_SWEEP_INTERVAL, func() {
			d.sweepExpired(time.Now())
		}),
	)
	if consts.OPMON_DUMP_INTERVAL > 0 {
		d.timers = append(d.timers, timer.AddTimer(consts.OPMON_DUMP_INTERVAL, func() {
			opmon.Dump(rslog.Writer(rslog.InfoLevel))
		}))
	}
	go d.tickRoutine()
	go rsutils.RepeatUntilPanicless(d.handleRoutine)
	rslog.Infof("%s started", d)
}

// Stop disconnects every client, stops the shards and waits for the root loop to quit
func (d *Dispatcher) Stop() {
	if d.terminating.Load() {
		return
	}
	d.terminating.Store(true)
	close(d.stopTicker)
	closed := make(chan struct{})
	d.Call(func() {
		for _, cp := range d.proxies {
			cp.Close()
		}
		for _, t := range d.timers {
			t.Cancel()
		}
		close(closed)
	})
	<-closed
	for _, s := range d.shards {
		s.Stop()
	}
	d.queue.Close()
	d.terminated.Wait()
}

// ServeConn serves a client connection until it closes
func (d *Dispatcher) ServeConn(conn netutil.Conn) {
	if d.terminating.Load() {
		conn.Close()
		return
	}
	cp := newClientProxy(d, conn)
	d.queue.Push(&proxyConnected{cp})
	go cp.writeRoutine()
	cp.readRoutine(d)
}

func (d *Dispatcher) tickRoutine() {
	ticker := time.NewTicker(consts.ROOT_TICK_INTERVAL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.queue.Push(rootTick{})
		case <-d.stopTicker:
			return
		}
	}
}

func (d *Dispatcher) handleRoutine() {
	for {
		item := d.queue.Pop()
		if item == nil { // queue is closed
			rslog.Infof("%s terminated", d)
			d.terminated.Signal()
			return
		}
		if err := rsutils.CatchPanic(func() { d.handle(item) }); err != nil {
			d.fault(err)
		}
	}
}

func (d *Dispatcher) fault(err error) {
	rslog.Errorf("%s: %+v", d, err)
	d.root.Emit(events.NewLocalEvent(proto.EV_FAULT, err))
	select {
	case d.errors <- err:
	default:
		// nobody is reading, keep the newest
		select {
		case <-d.errors:
		default:
		}
		select {
		case d.errors <- err:
		default:
		}
	}
}

func (d *Dispatcher) handle(item interface{}) {
	switch m := item.(type) {
	case rootTick:
		timer.Tick()
	case *proxyMessage:
		op := opmon.StartOperation("RootHandleMessage")
		d.handleProxyMessage(m.cp, m.data)
		op.Finish(time.Millisecond * 100)
	case *proxyConnected:
		d.proxies[m.cp.connID] = m.cp
		if consts.DEBUG_ROUTING {
			rslog.Debugf("%s: %s connected", d, m.cp)
		}
	case *proxyClosed:
		d.onProxyClosed(m.cp)
	case *shard.SendToUsers:
		d.handleSendToUsers(m)
	case *shard.UserConnected:
		d.handleUserConnected(m)
	case *shard.RoomCreated:
		d.claim(d.roomShards, "room", m.RoomID, m.Shard)
	case *shard.RoomDestroyed:
		d.release(d.roomShards, m.RoomID, m.Shard)
	case *shard.EntityCreated:
		d.claim(d.entityShards, "network entity", m.EntityID, m.Shard)
	case *shard.EntityDestroyed:
		d.release(d.entityShards, m.EntityID, m.Shard)
	case *shard.PlayerJoined:
		d.playerRooms[m.PlayerID] = m.RoomID
	case *shard.PlayerLeft:
		delete(d.playerRooms, m.PlayerID)
	case *shard.FanoutAck:
		d.handleFanoutAck(m)
	case *shard.Fault:
		d.fault(errors.Wrapf(m.Err, "shard %d", m.Shard))
	case func():
		m()
	default:
		rslog.TraceError("%s: unknown item %T", d, item)
	}
}

func (d *Dispatcher) claim(table map[common.ID]int, kind string, id common.ID, shardIndex int) {
	if owner, ok := table[id]; ok && owner != shardIndex {
		rslog.Errorf("%s: %s %s claimed by shard %d is owned by shard %d", d, kind, id, shardIndex, owner)
		return
	}
	table[id] = shardIndex
	if consts.DEBUG_ROUTING {
		rslog.Debugf("%s: %s %s -> shard %d", d, kind, id, shardIndex)
	}
}

func (d *Dispatcher) release(table map[common.ID]int, id common.ID, shardIndex int) {
	if owner, ok := table[id]; ok && owner == shardIndex {
		delete(table, id)
	}
}

// OwnerOfRoom returns the shard owning the room, it must be called from the root loop
func (d *Dispatcher) OwnerOfRoom(roomID common.ID) (int, bool) {
	s, ok := d.roomShards[roomID]
	return s, ok
}

// OwnerOfEntity returns the shard owning the network entity, it must be called from the root loop
func (d *Dispatcher) OwnerOfEntity(entityID common.ID) (int, bool) {
	s, ok := d.entityShards[entityID]
	return s, ok
}

func (d *Dispatcher) handleProxyMessage(cp *ClientProxy, data []byte) {
	if cp.closed {
		return
	}
	env, err := proto.DecodeEnvelope(d.packer, data)
	if err != nil {
		rslog.Warnf("%s: drop message of %s: %v", d, cp, err)
		return
	}
	cp.router.Dispatch(env, cp.UserID(), cp.router.SendEnvelope)
}

func (d *Dispatcher) handlePing(ev *events.Event) {
	if ev.From.IsNil() {
		return
	}
	var ping proto.PingPayload
	if err := ev.Decode(&ping); err != nil {
		return
	}
	for _, s := range d.shards {
		s.Post(&shard.UserLatency{UserID: ev.From, Latency: ping.Latency})
	}
}

func (d *Dispatcher) onProxyClosed(cp *ClientProxy) {
	if cp.closed {
		return
	}
	cp.closed = true
	close(cp.sendQueue)
	cp.router.Close()
	delete(d.proxies, cp.connID)

	uid := cp.userID
	if uid.IsNil() || d.users[uid] != cp {
		return
	}
	delete(d.users, uid)
	delete(d.pendingAuths, uid)
	for key := range d.fanouts {
		if key.userID == uid {
			delete(d.fanouts, key)
		}
	}
	for _, s := range d.shards {
		s.Post(&shard.DisconnectUser{UserID: uid})
	}
	if consts.DEBUG_ROUTING {
		rslog.Debugf("%s: user %s of %s disconnected", d, uid, cp)
	}
}

func (d *Dispatcher) handleSendToUsers(m *shard.SendToUsers) {
	data, err := m.Env.Encode(d.packer)
	if err != nil {
		rslog.Errorf("%s: encode %s failed: %v", d, m.Env, err)
		return
	}
	for _, uid := range m.UserIDs {
		cp := d.users[uid]
		if cp == nil {
			continue
		}
		cp.send(data)
	}
}

func (d *Dispatcher) checkHeartbeats() {
	deadline := time.Now().Add(-d.cfg.HeartbeatTimeout)
	for _, cp := range d.proxies {
		if cp.lastHeartbeat().Before(deadline) {
			rslog.Warnf("%s: %s heartbeat timeout", d, cp)
			cp.Close()
		}
	}
	opmon.GetSink().SetGauge("root_connections", float64(len(d.proxies)))
	opmon.GetSink().SetGauge("root_rooms", float64(len(d.roomShards)))
}

func (d *Dispatcher) sweepExpired(now time.Time) {
	for _, cp := range d.proxies {
		cp.router.SweepExpired(now)
	}
	d.sweepFanouts(now)
}

// failEvent answers a failed request, the sender of a failed notification gets an error message
func (d *Dispatcher) failEvent(cp *ClientProxy, ev *events.Event, err error) {
	if ev.IsRequest() {
		ev.Fail(err)
		return
	}
	if consts.DEBUG_ROUTING {
		rslog.Debugf("%s: %s of %s failed: %v", d, ev.Type, cp, err)
	}
	if err := cp.router.Send(proto.MT_ERROR, ev.Scope(), proto.ErrorPayload{Name: ev.Type.Name(), Message: err.Error()}); err != nil {
		rslog.Warnf("%s: send error to %s failed: %v", d, cp, err)
	}
}
