package netutil

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// MSG_PACKER is used for packing and unpacking network data
	MSG_PACKER MsgPacker = MessagePackMsgPacker{}

	// ErrPack is the cause of every packing failure
	ErrPack = errors.New("pack failed")
	// ErrUnpack is the cause of every unpacking failure
	ErrUnpack = errors.New("unpack failed")
)

// MsgPacker is used to packs and unpacks messages
type MsgPacker interface {
	Name() string
	PackMsg(msg interface{}, buf []byte) ([]byte, error)
	UnpackMsg(data []byte, msg interface{}) error
}

// GetMsgPacker returns the packer of name (msgpack or json), msgpack is used for unknown names
func GetMsgPacker(name string) MsgPacker {
	for _, p := range []MsgPacker{JSONMsgPacker{}, MessagePackMsgPacker{}} {
		if strings.EqualFold(name, p.Name()) {
			return p
		}
	}
	return MSG_PACKER
}
