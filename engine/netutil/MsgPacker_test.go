package netutil

import (
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

type testMsg struct {
	ID        string
	F1        float64
	F2        int
	ListField []interface{}
	MapField  map[string]interface{}
}

func BenchmarkMessagePackMsgPacker(b *testing.B) {
	benchmarkMsgPacker(b, &MessagePackMsgPacker{})
}

func BenchmarkJSONMsgPacker(b *testing.B) {
	benchmarkMsgPacker(b, &JSONMsgPacker{})
}

func benchmarkMsgPacker(b *testing.B, packer MsgPacker) {
	b.Logf("Testing MsgPacker %T ...", packer)
	msg := testMsg{
		ID:        "abc",
		F1:        0.123124234,
		ListField: []interface{}{1, 2, 3, "abc", "def"},
		MapField:  map[string]interface{}{},
	}
	for i := 0; i < 100; i++ {
		msg.MapField["key"+strconv.Itoa(i)] = i
	}

	var totalSize int64
	for i := 0; i < b.N; i++ {
		buf := make([]byte, 0, 100)
		buf, _ = packer.PackMsg(msg, buf)
		totalSize += int64(len(buf))

		var restoreMsg map[string]interface{}
		_ = packer.UnpackMsg(buf, &restoreMsg)
	}
	b.Logf("average size: %d", totalSize/int64(b.N))
}

func TestMessagePackMsgPacker_UnpackMsg(t *testing.T) {
	msg := map[string]interface{}{
		"a": 1,
		"b": 2,
		"c": map[string]interface{}{
			"d": 1,
		},
	}
	buf := make([]byte, 0)
	buf, err := MessagePackMsgPacker{}.PackMsg(msg, buf)
	if err != nil {
		t.Error(err)
	}
	var outmsg map[string]interface{}
	MessagePackMsgPacker{}.UnpackMsg(buf, &outmsg)
	t.Logf("outmsg %T %v", outmsg, outmsg)
	if _, ok := outmsg["c"].(map[interface{}]interface{}); ok {
		t.Errorf("should not unpack with type map[interface{}]interface{}")
	}
}

func TestJSONMsgPackerTrimsNewline(t *testing.T) {
	buf, err := JSONMsgPacker{}.PackMsg(map[string]int{"a": 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf) != `{"a":1}` {
		t.Errorf("unexpected json %q", buf)
	}
}

func TestGetMsgPacker(t *testing.T) {
	if _, ok := GetMsgPacker("JSON").(JSONMsgPacker); !ok {
		t.Errorf("json packer expected")
	}
	if _, ok := GetMsgPacker("").(MessagePackMsgPacker); !ok {
		t.Errorf("msgpack packer expected")
	}
}

func TestUnpackErrors(t *testing.T) {
	for _, packer := range []MsgPacker{MessagePackMsgPacker{}, JSONMsgPacker{}} {
		var v map[string]interface{}
		err := packer.UnpackMsg(nil, &v)
		if errors.Cause(err) != ErrUnpack {
			t.Errorf("%s: empty message: %v", packer.Name(), err)
		}
		err = packer.UnpackMsg([]byte{0xc1, 0x00}, &v)
		if errors.Cause(err) != ErrUnpack || !strings.HasPrefix(err.Error(), packer.Name()) {
			t.Errorf("%s: garbage: %v", packer.Name(), err)
		}
	}
	if _, err := (JSONMsgPacker{}).PackMsg(make(chan int), nil); errors.Cause(err) != ErrPack {
		t.Errorf("json pack of a channel: %v", err)
	}
}
