package proto

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/netutil"
)

// Envelope is the unit of every message on the wire
//
// Data holds the payload packed by the same packer as the envelope. ID is the correlation id,
// Reply tells a reply from a request carrying the same id.
type Envelope struct {
	Name  string       `msgpack:"n" json:"n"`
	Scope common.Scope `msgpack:"s" json:"s"`
	Data  []byte       `msgpack:"d,omitempty" json:"d,omitempty"`
	ID    uint64       `msgpack:"i,omitempty" json:"i,omitempty"`
	Reply bool         `msgpack:"r,omitempty" json:"r,omitempty"`
	Error string       `msgpack:"e,omitempty" json:"e,omitempty"`
}

func (env *Envelope) String() string {
	if env.Reply {
		return fmt.Sprintf("Envelope<%s@%s reply#%d>", env.Name, env.Scope, env.ID)
	} else if env.ID != 0 {
		return fmt.Sprintf("Envelope<%s@%s request#%d>", env.Name, env.Scope, env.ID)
	}
	return fmt.Sprintf("Envelope<%s@%s>", env.Name, env.Scope)
}

// Type resolves the message type, ok is false for unknown names
func (env *Envelope) Type() (MsgType, bool) {
	return ParseMsgType(env.Name)
}

// IsRequest returns if the envelope expects a correlated reply
func (env *Envelope) IsRequest() bool {
	return env.ID != 0 && !env.Reply
}

// NewEnvelope builds an envelope with payload packed by packer, a nil payload leaves Data empty
func NewEnvelope(packer netutil.MsgPacker, mt MsgType, scope common.Scope, payload interface{}) (*Envelope, error) {
	env := &Envelope{
		Name:  mt.Name(),
		Scope: scope,
	}
	if payload != nil {
		data, err := packer.PackMsg(payload, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "pack %s payload", mt)
		}
		env.Data = data
	}
	return env, nil
}

// DecodeData unpacks the payload into v
func (env *Envelope) DecodeData(packer netutil.MsgPacker, v interface{}) error {
	if len(env.Data) == 0 {
		return errors.Errorf("%s has no payload", env)
	}
	if err := packer.UnpackMsg(env.Data, v); err != nil {
		return errors.Wrapf(err, "unpack %s payload", env)
	}
	return nil
}

// Encode packs the envelope
func (env *Envelope) Encode(packer netutil.MsgPacker) ([]byte, error) {
	return packer.PackMsg(env, nil)
}

// DecodeEnvelope unpacks an envelope, unknown message names are rejected
func DecodeEnvelope(packer netutil.MsgPacker, data []byte) (*Envelope, error) {
	var env Envelope
	if err := packer.UnpackMsg(data, &env); err != nil {
		return nil, errors.Wrap(err, "malformed envelope")
	}
	if _, ok := env.Type(); !ok {
		return nil, errors.Errorf("unknown message name %q", env.Name)
	}
	if !env.Scope.Type.IsValid() {
		return nil, errors.Errorf("invalid scope type %d of %s", env.Scope.Type, env.Name)
	}
	return &env, nil
}
