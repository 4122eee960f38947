package netutil

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
)

// MessagePackMsgPacker packs messages as MessagePack, the default wire format
type MessagePackMsgPacker struct{}

// Name returns msgpack
func (mp MessagePackMsgPacker) Name() string {
	return "msgpack"
}

// PackMsg appends the MessagePack encoding of msg to buf
func (mp MessagePackMsgPacker) PackMsg(msg interface{}, buf []byte) ([]byte, error) {
	buffer := bytes.NewBuffer(buf)
	if err := msgpack.NewEncoder(buffer).Encode(msg); err != nil {
		return buf, errors.Wrapf(ErrPack, "msgpack %T: %v", msg, err)
	}
	return buffer.Bytes(), nil
}

// UnpackMsg decodes one MessagePack message into msg
func (mp MessagePackMsgPacker) UnpackMsg(data []byte, msg interface{}) error {
	if len(data) == 0 {
		return errors.Wrap(ErrUnpack, "msgpack: empty message")
	}
	if err := msgpack.Unmarshal(data, msg); err != nil {
		return errors.Wrapf(ErrUnpack, "msgpack %d bytes into %T: %v", len(data), msg, err)
	}
	return nil
}
