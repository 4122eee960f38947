// Package events implements the per-object event streams messages are dispatched to.
//
// Streams are keyed by proto.MsgType, so the set of events is closed and every handler
// table can be checked against the message kinds it serves.
package events

import (
	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/netutil"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/rsutils"
)

// Responder answers a request exactly once
type Responder func(err error, payload interface{})

// Event is a dispatched message or a locally fired domain event
type Event struct {
	Type     proto.MsgType
	Envelope *proto.Envelope
	// From is the user the envelope came from, nil when unknown or local
	From common.ID
	// Value is the subject of local events, like the *Player of a join notification
	Value interface{}

	packer    netutil.MsgPacker
	responder Responder
	responded bool
}

// NewEvent wraps a received envelope, responder is nil unless the envelope is a request
func NewEvent(mt proto.MsgType, env *proto.Envelope, from common.ID, packer netutil.MsgPacker, responder Responder) *Event {
	return &Event{
		Type:      mt,
		Envelope:  env,
		From:      from,
		packer:    packer,
		responder: responder,
	}
}

// NewLocalEvent creates an event that was not received from the network
func NewLocalEvent(mt proto.MsgType, value interface{}) *Event {
	return &Event{Type: mt, Value: value}
}

// Scope returns the scope of the received envelope
func (ev *Event) Scope() common.Scope {
	if ev.Envelope == nil {
		return common.Scope{}
	}
	return ev.Envelope.Scope
}

// Decode unpacks the payload of the received envelope
func (ev *Event) Decode(v interface{}) error {
	if ev.Envelope == nil {
		return errors.Errorf("local event %s has no payload", ev.Type)
	}
	return ev.Envelope.DecodeData(ev.packer, v)
}

// IsRequest returns if the event expects a reply
func (ev *Event) IsRequest() bool {
	return ev.responder != nil
}

// Responded returns if Reply or Fail was called
func (ev *Event) Responded() bool {
	return ev.responded
}

// Reply answers the request with payload, later answers are ignored
func (ev *Event) Reply(payload interface{}) {
	ev.respond(nil, payload)
}

// Fail answers the request with err, later answers are ignored
func (ev *Event) Fail(err error) {
	ev.respond(err, nil)
}

func (ev *Event) respond(err error, payload interface{}) {
	if ev.responder == nil || ev.responded {
		return
	}
	ev.responded = true
	ev.responder(err, payload)
}

// Handler handles events
type Handler func(ev *Event)

type handlerEntry struct {
	h       Handler
	removed bool
}

// Subscription removes a handler from its emitter
type Subscription struct {
	entry *handlerEntry
}

// Cancel removes the handler
func (s Subscription) Cancel() {
	if s.entry != nil {
		s.entry.removed = true
	}
}

// Emitter is an event stream
type Emitter struct {
	handlers map[proto.MsgType][]*handlerEntry
	any      []*handlerEntry
}

// NewEmitter creates an empty event stream
func NewEmitter() *Emitter {
	return &Emitter{handlers: map[proto.MsgType][]*handlerEntry{}}
}

// On adds a handler of one message type
func (e *Emitter) On(mt proto.MsgType, h Handler) Subscription {
	entry := &handlerEntry{h: h}
	e.handlers[mt] = append(e.handlers[mt], entry)
	return Subscription{entry}
}

// OnAny adds a handler of every message type
func (e *Emitter) OnAny(h Handler) Subscription {
	entry := &handlerEntry{h: h}
	e.any = append(e.any, entry)
	return Subscription{entry}
}

// Handles returns if any typed handler listens to mt
func (e *Emitter) Handles(mt proto.MsgType) bool {
	for _, entry := range e.handlers[mt] {
		if !entry.removed {
			return true
		}
	}
	return false
}

// Emit calls the handlers of ev.Type then the catch-all handlers, returns how many ran
//
// A panicking handler is logged and does not stop the others.
func (e *Emitter) Emit(ev *Event) int {
	n := 0
	for _, list := range [2][]*handlerEntry{e.handlers[ev.Type], e.any} {
		for _, entry := range list {
			if entry.removed {
				continue
			}
			rsutils.RunPanicless(func() {
				entry.h(ev)
			})
			n += 1
		}
	}
	e.compact(ev.Type)
	return n
}

// compact drops the cancelled handlers of mt. The list is rebuilt in a new array: an outer
// Emit of the same type may still be ranging over the old one.
func (e *Emitter) compact(mt proto.MsgType) {
	list := e.handlers[mt]
	removed := 0
	for _, entry := range list {
		if entry.removed {
			removed += 1
		}
	}
	if removed == 0 {
		return
	}
	alive := make([]*handlerEntry, 0, len(list)-removed)
	for _, entry := range list {
		if !entry.removed {
			alive = append(alive, entry)
		}
	}
	if len(alive) == 0 {
		delete(e.handlers, mt)
	} else {
		e.handlers[mt] = alive
	}
}

// Clear removes every handler, it is called when the owner of the stream is destroyed
func (e *Emitter) Clear() {
	for _, list := range e.handlers {
		for _, entry := range list {
			entry.removed = true
		}
	}
	for _, entry := range e.any {
		entry.removed = true
	}
	e.handlers = map[proto.MsgType][]*handlerEntry{}
	e.any = nil
}
