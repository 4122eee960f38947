// Package config reads the roomsync.ini of the server and the clients.
package config

import (
	"encoding/json"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-ini/ini"
	"github.com/roomsync/roomsync/engine/consts"
	"github.com/roomsync/roomsync/engine/rslog"
)

const (
	_DEFAULT_CONFIG_FILE = "roomsync.ini"
	_DEFAULT_LOG_LEVEL   = "debug"
	_DEFAULT_HTTP_IP     = "127.0.0.1"
)

var (
	configFilePath = _DEFAULT_CONFIG_FILE
	roomSyncConfig *RoomSyncConfig
	configLock     sync.Mutex
)

// RootConfig defines fields of the [root] section
type RootConfig struct {
	Ip               string
	WebSocketPort    int
	KCPPort          int
	Packer           string
	HeartbeatTimeout time.Duration
	RequestTimeout   time.Duration
	LogFile          string
	LogStderr        bool
	LogLevel         string
	HTTPIp           string
	HTTPPort         int
	GoMaxProcs       int
	MetricsNamespace string
}

// ShardConfig defines fields of the [shard_common] section
type ShardConfig struct {
	// Shards is the number of shards, 0 uses the number of CPUs
	Shards     int
	LevelsFile string
}

// ClientConfig defines fields of the [client] section
type ClientConfig struct {
	ServerURL         string
	Packer            string
	InterpCapacity    int
	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
}

// AuthConfig defines fields of the [auth] section
type AuthConfig struct {
	Type     string // guest or jwt
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

// RoomSyncConfig defines the total config file structure
type RoomSyncConfig struct {
	Root        RootConfig
	ShardCommon ShardConfig
	Client      ClientConfig
	Auth        AuthConfig
}

// SetConfigFile sets the config file path (roomsync.ini by default)
func SetConfigFile(f string) {
	configLock.Lock()
	configFilePath = f
	roomSyncConfig = nil
	configLock.Unlock()
}

// GetConfigDir returns the directory of the config file
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total config, the file is read on first use
func Get() *RoomSyncConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if roomSyncConfig == nil {
		roomSyncConfig = readConfig(configFilePath)
	}
	return roomSyncConfig
}

// Reload forces the config file to be read again
func Reload() *RoomSyncConfig {
	configLock.Lock()
	roomSyncConfig = nil
	configLock.Unlock()

	return Get()
}

// GetRoot returns the [root] config
func GetRoot() *RootConfig {
	return &Get().Root
}

// GetShard returns the [shard_common] config
func GetShard() *ShardConfig {
	return &Get().ShardCommon
}

// GetClient returns the [client] config
func GetClient() *ClientConfig {
	return &Get().Client
}

// GetAuth returns the [auth] config
func GetAuth() *AuthConfig {
	return &Get().Auth
}

// DumpPretty formats config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

// readConfig reads config from source, a file path or raw []byte
func readConfig(source interface{}) *RoomSyncConfig {
	config := RoomSyncConfig{}
	iniFile, err := ini.Load(source)
	checkConfigError(err, "")

	readRootConfig(iniFile.Section("root"), &config.Root)
	readShardConfig(iniFile.Section("shard_common"), &config.ShardCommon)
	readClientConfig(iniFile.Section("client"), &config.Client)
	readAuthConfig(iniFile.Section("auth"), &config.Auth)

	for _, sec := range iniFile.Sections() {
		secName := strings.ToLower(sec.Name())
		switch secName {
		case strings.ToLower(ini.DefaultSection), "root", "shard_common", "client", "auth":
		default:
			rslog.Panicf("unknown section: %s", sec.Name())
		}
	}
	return &config
}

func readRootConfig(sec *ini.Section, rc *RootConfig) {
	rc.Ip = "0.0.0.0"
	rc.WebSocketPort = 0
	rc.KCPPort = 0
	rc.Packer = "msgpack"
	rc.HeartbeatTimeout = consts.CLIENT_HEARTBEAT_TIMEOUT
	rc.RequestTimeout = consts.REQUEST_TIMEOUT
	rc.LogFile = "roomsync.log"
	rc.LogStderr = true
	rc.LogLevel = _DEFAULT_LOG_LEVEL
	rc.HTTPIp = _DEFAULT_HTTP_IP
	rc.HTTPPort = 0 // pprof and metrics not enabled by default
	rc.MetricsNamespace = "roomsync"

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "ip" {
			rc.Ip = key.MustString(rc.Ip)
		} else if name == "websocket_port" {
			rc.WebSocketPort = key.MustInt(rc.WebSocketPort)
		} else if name == "kcp_port" {
			rc.KCPPort = key.MustInt(rc.KCPPort)
		} else if name == "packer" {
			rc.Packer = key.MustString(rc.Packer)
		} else if name == "heartbeat_timeout" {
			rc.HeartbeatTimeout = time.Second * time.Duration(key.MustInt(int(rc.HeartbeatTimeout/time.Second)))
		} else if name == "request_timeout" {
			rc.RequestTimeout = time.Second * time.Duration(key.MustInt(int(rc.RequestTimeout/time.Second)))
		} else if name == "log_file" {
			rc.LogFile = key.MustString(rc.LogFile)
		} else if name == "log_stderr" {
			rc.LogStderr = key.MustBool(rc.LogStderr)
		} else if name == "log_level" {
			rc.LogLevel = key.MustString(rc.LogLevel)
		} else if name == "http_ip" {
			rc.HTTPIp = key.MustString(rc.HTTPIp)
		} else if name == "http_port" {
			rc.HTTPPort = key.MustInt(rc.HTTPPort)
		} else if name == "gomaxprocs" {
			rc.GoMaxProcs = key.MustInt(rc.GoMaxProcs)
		} else if name == "metrics_namespace" {
			rc.MetricsNamespace = key.MustString(rc.MetricsNamespace)
		} else {
			rslog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}

	if rc.WebSocketPort == 0 && rc.KCPPort == 0 {
		rslog.Panicf("section %s: websocket_port or kcp_port must be set", sec.Name())
	}
}

func readShardConfig(sec *ini.Section, sc *ShardConfig) {
	sc.Shards = 0
	sc.LevelsFile = ""

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "shards" {
			sc.Shards = key.MustInt(sc.Shards)
		} else if name == "levels_file" {
			sc.LevelsFile = key.MustString(sc.LevelsFile)
		} else {
			rslog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	if sc.Shards < 0 {
		rslog.Panicf("section %s: shards must not be negative", sec.Name())
	}
}

func readClientConfig(sec *ini.Section, cc *ClientConfig) {
	cc.ServerURL = "ws://127.0.0.1:14001/ws"
	cc.Packer = "msgpack"
	cc.InterpCapacity = consts.INTERP_BUFFER_CAPACITY
	cc.RequestTimeout = consts.REQUEST_TIMEOUT
	cc.HeartbeatInterval = consts.CLIENT_HEARTBEAT_INTERVAL

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "server_url" {
			cc.ServerURL = key.MustString(cc.ServerURL)
		} else if name == "packer" {
			cc.Packer = key.MustString(cc.Packer)
		} else if name == "interp_capacity" {
			cc.InterpCapacity = key.MustInt(cc.InterpCapacity)
		} else if name == "request_timeout" {
			cc.RequestTimeout = time.Second * time.Duration(key.MustInt(int(cc.RequestTimeout/time.Second)))
		} else if name == "heartbeat_interval_ms" {
			cc.HeartbeatInterval = time.Millisecond * time.Duration(key.MustInt(int(cc.HeartbeatInterval/time.Millisecond)))
		} else {
			rslog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	if cc.InterpCapacity <= 0 {
		rslog.Panicf("section %s: interp_capacity must be positive", sec.Name())
	}
}

func readAuthConfig(sec *ini.Section, ac *AuthConfig) {
	ac.Type = "guest"
	ac.TokenTTL = time.Hour * 24

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "type" {
			ac.Type = key.MustString(ac.Type)
		} else if name == "secret" {
			ac.Secret = key.MustString(ac.Secret)
		} else if name == "issuer" {
			ac.Issuer = key.MustString(ac.Issuer)
		} else if name == "token_ttl" {
			ac.TokenTTL = time.Second * time.Duration(key.MustInt(int(ac.TokenTTL/time.Second)))
		} else {
			rslog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}

	switch ac.Type {
	case "guest":
	case "jwt":
		if ac.Secret == "" {
			rslog.Panicf("section %s: secret is not set for jwt auth", sec.Name())
		}
	default:
		rslog.Panicf("section %s: unknown auth type: %s", sec.Name(), ac.Type)
	}
}

func checkConfigError(err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		rslog.Panicf("read config error: %s", msg)
	}
}
