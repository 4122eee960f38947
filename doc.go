/*
Roomsync is a real-time multiplayer state synchronization server. Clients authenticate, create and join rooms, and
receive a replicated view of the players and network entities inside each room they joined.

Processes

A roomsync server is one process. Client connections (WebSocket or KCP) are accepted by the dispatcher, which
authenticates users, routes every message by its target scope and owns the tables mapping rooms and network entities
to worker shards. Each shard runs its own world on its own goroutine: the rooms it created, their scene graphs and the
players inside. Shards never share state, they talk to the dispatcher with messages only.

Room replication

A room is created with a tickrate. Every tick the owning shard snapshots the transforms and data of its network
entities and broadcasts one state:update to the players of the room, carrying only what changed. Clients feed the
updates into an interpolation buffer per entity and render positions between snapshots.

Running the server

	roomsync_server -configfile roomsync.ini

Game logic is installed per shard through dispatcher.Config.Setup:

	d := dispatcher.New(dispatcher.Config{
		Shards: 4,
		Setup: func(index int, w *entity.World) {
			w.Events.On(proto.MT_USER_MESSAGE, func(ev *events.Event) {
				ev.Reply(map[string]interface{}{"shard": index})
			})
		},
	})
	d.Start()

Clients

Package engine/client implements the client side session. examples/test_client runs bots against a server.

Configuration

Roomsync uses `roomsync.ini` as the default config file, see roomsync.ini.sample.

*/
package roomsync
