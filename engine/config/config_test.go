package config

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/roomsync/roomsync/engine/consts"
	"github.com/roomsync/roomsync/engine/rslog"
)

func init() {
	SetConfigFile("../../roomsync.ini.sample")
}

func TestLoad(t *testing.T) {
	config := Get()
	rslog.Debugf("roomsync config: \n%s", DumpPretty(config))
	assert.Equal(t, 14001, config.Root.WebSocketPort)
	assert.Equal(t, 14002, config.Root.KCPPort)
	assert.Equal(t, "msgpack", config.Root.Packer)
	assert.Equal(t, 30*time.Second, config.Root.HeartbeatTimeout)
	assert.Equal(t, 0, config.ShardCommon.Shards)
	assert.Equal(t, 8, config.Client.InterpCapacity)
	assert.Equal(t, 2*time.Second, config.Client.HeartbeatInterval)
	assert.Equal(t, "guest", config.Auth.Type)
	assert.Equal(t, 24*time.Hour, config.Auth.TokenTTL)
}

func TestReload(t *testing.T) {
	before := Get()
	after := Reload()
	assert.T(t, before != after)
	assert.Equal(t, before.Root, after.Root)
}

func TestDefaults(t *testing.T) {
	config := readConfig([]byte("[root]\nwebsocket_port = 1000\n"))
	assert.Equal(t, "0.0.0.0", config.Root.Ip)
	assert.Equal(t, consts.REQUEST_TIMEOUT, config.Root.RequestTimeout)
	assert.Equal(t, consts.INTERP_BUFFER_CAPACITY, config.Client.InterpCapacity)
	assert.Equal(t, "guest", config.Auth.Type)
}

func assertPanics(t *testing.T, source string) {
	defer func() {
		assert.T(t, recover() != nil, source)
	}()
	readConfig([]byte(source))
}

func TestInvalidConfig(t *testing.T) {
	assertPanics(t, "[root]\nwebsocket_port = 1000\nbogus = 1\n")
	assertPanics(t, "[root]\n")
	assertPanics(t, "[root]\nwebsocket_port = 1000\n[auth]\ntype = jwt\n")
	assertPanics(t, "[root]\nwebsocket_port = 1000\n[auth]\ntype = oauth\n")
	assertPanics(t, "[root]\nwebsocket_port = 1000\n[gate1]\nport = 1\n")
}
