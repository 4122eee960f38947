package consts

import "time"

// Tunable Options
const (
	// For Shards
	// SHARD_INBOX_SIZE is the max message queue length of a shard
	SHARD_INBOX_SIZE = 10000
	// SHARD_TICK_INTERVAL is the tick interval of the shard loop, rooms tick by their own tickrate on top of it
	SHARD_TICK_INTERVAL = time.Millisecond * 5
	// DEFAULT_ROOM_TICKRATE is the tickrate of rooms created without an explicit one
	DEFAULT_ROOM_TICKRATE = 20
	// ROOM_CREATION_SHARD is the index of the shard all room creations are pinned to
	ROOM_CREATION_SHARD = 0
	// ROOM_TICK_WARN_THRESHOLD warns about room ticks slower than that
	ROOM_TICK_WARN_THRESHOLD = time.Millisecond * 10

	// For Root
	// ROOT_TICK_INTERVAL is the interval to tick timers on the root loop
	ROOT_TICK_INTERVAL = time.Millisecond * 10
	// CLIENT_PROXY_SEND_QUEUE_SIZE is the buffered send queue length of each client proxy
	CLIENT_PROXY_SEND_QUEUE_SIZE = 1024
	// HEARTBEAT_CHECK_INTERVAL is the interval to check client heartbeat timeouts
	HEARTBEAT_CHECK_INTERVAL = time.Second * 5
	// CLIENT_HEARTBEAT_TIMEOUT disconnects clients that have not pinged for that long
	CLIENT_HEARTBEAT_TIMEOUT = time.Second * 30

	// For Router
	// REQUEST_TIMEOUT is how long a pending callback waits for its reply
	REQUEST_TIMEOUT = time.Second * 30
	// PENDING_SWEEP_INTERVAL is the interval to fail timed out pending callbacks
	PENDING_SWEEP_INTERVAL = time.Second

	// For Client
	// CLIENT_HEARTBEAT_INTERVAL is the ping interval of clients
	CLIENT_HEARTBEAT_INTERVAL = time.Second * 2
	// INTERP_BUFFER_CAPACITY is the default capacity of interpolation buffers
	INTERP_BUFFER_CAPACITY = 8

	// For Networking
	// BUFFERED_READ_BUFFSIZE is the read buffer size of stream connections
	BUFFERED_READ_BUFFSIZE = 16384
	// BUFFERED_WRITE_BUFFSIZE is the write buffer size of stream connections
	BUFFERED_WRITE_BUFFSIZE = 16384
	// KCP_READ_BUFFER_SIZE is the socket read buffer size of kcp sessions
	KCP_READ_BUFFER_SIZE = 1024 * 1024
	// KCP_WRITE_BUFFER_SIZE is the socket write buffer size of kcp sessions
	KCP_WRITE_BUFFER_SIZE = 1024 * 1024
	// MAX_PACKET_SIZE is the max length of a framed packet
	MAX_PACKET_SIZE = 25 * 1024 * 1024
	// KCP_NO_DELAY enables kcp nodelay mode
	KCP_NO_DELAY = 1
	// KCP_INTERNAL_UPDATE_TIMER_INTERVAL is the interval of kcp internal update timer
	KCP_INTERNAL_UPDATE_TIMER_INTERVAL = 10
	// KCP_ENABLE_FAST_RESEND enables kcp fast resend
	KCP_ENABLE_FAST_RESEND = 2
	// KCP_DISABLE_CONGESTION_CONTROL disables kcp congestion control
	KCP_DISABLE_CONGESTION_CONTROL = 1
	// KCP_SET_STREAM_MODE sets kcp to stream mode
	KCP_SET_STREAM_MODE = true
	// KCP_SET_WRITE_DELAY sets kcp write delay
	KCP_SET_WRITE_DELAY = false
	// KCP_SET_ACK_NO_DELAY sets kcp ack nodelay
	KCP_SET_ACK_NO_DELAY = true

	// For Operation Monitor
	// OPMON_DUMP_INTERVAL is the interval to print opmon infos to output
	OPMON_DUMP_INTERVAL = 0
)

// Debug Options
const (
	// DEBUG_PACKETS prints packet send/recv debug logs
	DEBUG_PACKETS = false
	// DEBUG_ROOMS prints room operation debug logs
	DEBUG_ROOMS = false
	// DEBUG_ROUTING prints root routing table debug logs
	DEBUG_ROUTING = false
)
