package netutil

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// JSONMsgPacker packs messages as JSON, it is meant for debugging and browser clients
type JSONMsgPacker struct{}

// Name returns json
func (mp JSONMsgPacker) Name() string {
	return "json"
}

// PackMsg appends the JSON of msg to buf
func (mp JSONMsgPacker) PackMsg(msg interface{}, buf []byte) ([]byte, error) {
	buffer := bytes.NewBuffer(buf)
	if err := json.NewEncoder(buffer).Encode(msg); err != nil {
		return buf, errors.Wrapf(ErrPack, "json %T: %v", msg, err)
	}
	buf = buffer.Bytes()
	return buf[:len(buf)-1], nil // the encoder ends with '\n'
}

// UnpackMsg decodes one JSON message into msg
func (mp JSONMsgPacker) UnpackMsg(data []byte, msg interface{}) error {
	if len(data) == 0 {
		return errors.Wrap(ErrUnpack, "json: empty message")
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return errors.Wrapf(ErrUnpack, "json %d bytes into %T: %v", len(data), msg, err)
	}
	return nil
}
