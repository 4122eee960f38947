package main

import (
	"github.com/roomsync/roomsync/engine/entity"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/rslog"
	"github.com/xiaonanln/typeconv"
)

// setupShard installs the demo handlers on the world of every shard
func setupShard(index int, w *entity.World) {
	// echo answers user messages with the shard index and the rooms it runs, the client gets
	// one reply per shard
	w.Events.On(proto.MT_USER_MESSAGE, func(ev *events.Event) {
		var msg proto.RelayPayload
		if err := ev.Decode(&msg); err != nil {
			ev.Fail(err)
			return
		}
		if _, ok := msg.Body["echo"]; !ok {
			return
		}
		var seq int64
		if v, ok := msg.Body["seq"]; ok {
			seq = typeconv.Int(v)
		}
		ev.Reply(map[string]interface{}{
			"shard": index,
			"rooms": w.Rooms.Len(),
			"seq":   seq,
		})
	})

	w.Events.On(proto.EV_ROOM_CREATED, func(ev *events.Event) {
		room := ev.Value.(*entity.Room)
		rslog.Infof("shard %d: %s created, tickrate %d", index, room, room.Tickrate)
	})
	w.Events.On(proto.EV_ROOM_DESTROYED, func(ev *events.Event) {
		rslog.Infof("shard %d: %s destroyed", index, ev.Value)
	})
}
