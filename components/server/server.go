// Command server runs the root and the shards of roomsync in one process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/roomsync/roomsync/engine/auth"
	"github.com/roomsync/roomsync/engine/binutil"
	"github.com/roomsync/roomsync/engine/config"
	"github.com/roomsync/roomsync/engine/dispatcher"
	"github.com/roomsync/roomsync/engine/netutil"
	"github.com/roomsync/roomsync/engine/opmon"
	"github.com/roomsync/roomsync/engine/rslog"
	"github.com/roomsync/roomsync/engine/scene"
)

func main() {
	parseArgs()

	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize()
		defer daemoncontext.Release()
	}

	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}

	rootConfig := config.GetRoot()
	shardConfig := config.GetShard()
	if rootConfig.GoMaxProcs > 0 {
		rslog.Infof("SET GOMAXPROCS = %d", rootConfig.GoMaxProcs)
		runtime.GOMAXPROCS(rootConfig.GoMaxProcs)
	}
	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = rootConfig.LogLevel
	}
	binutil.SetupLog("server", logLevel, rootConfig.LogFile, rootConfig.LogStderr)
	rslog.Infof("Read config %s: \n%s", config.GetConfigFilePath(), config.DumpPretty(config.Get()))

	loader := scene.NewLevelLoader()
	if shardConfig.LevelsFile != "" {
		if err := loader.LoadLevelsFile(shardConfig.LevelsFile); err != nil {
			rslog.Fatalf("load levels failed: %v", err)
		}
	}

	shards := shardConfig.Shards
	if args.shards >= 0 {
		shards = args.shards
	}

	d := dispatcher.New(dispatcher.Config{
		Shards:           shards,
		Packer:           netutil.GetMsgPacker(rootConfig.Packer),
		Loader:           loader,
		Authenticator:    newAuthenticator(config.GetAuth()),
		Setup:            setupShard,
		HeartbeatTimeout: rootConfig.HeartbeatTimeout,
		RequestTimeout:   rootConfig.RequestTimeout,
	})

	sink := opmon.NewPrometheusSink(rootConfig.MetricsNamespace)
	opmon.SetSink(sink)
	sink.CollectProcessCPU(context.Background(), time.Second*10)
	binutil.SetupHTTPServer(rootConfig.HTTPIp, rootConfig.HTTPPort, map[string]http.Handler{
		"/metrics": sink.Handler(),
	})

	d.Start()
	go logFaults(d)
	serveClients(d, rootConfig)
	setupSignals(d)
	select {}
}

func newAuthenticator(cfg *config.AuthConfig) auth.Authenticator {
	if cfg.Type == "jwt" {
		rslog.Infof("clients authenticate with jwt tokens issued by %q", cfg.Issuer)
		return auth.NewJWTAuthenticator([]byte(cfg.Secret), cfg.Issuer)
	}
	return auth.GuestAuthenticator{}
}

func serveClients(d *dispatcher.Dispatcher, cfg *config.RootConfig) {
	if cfg.WebSocketPort != 0 {
		addr := fmt.Sprintf("%s:%d", cfg.Ip, cfg.WebSocketPort)
		mux := http.NewServeMux()
		mux.Handle("/ws", netutil.WebSocketHandler(d.ServeConn))
		rslog.Infof("websocket listening on ws://%s/ws", addr)
		go netutil.ServeForever("websocket", func() error {
			return http.ListenAndServe(addr, mux)
		})
	}
	if cfg.KCPPort != 0 {
		addr := fmt.Sprintf("%s:%d", cfg.Ip, cfg.KCPPort)
		rslog.Infof("kcp listening on %s", addr)
		go netutil.ServeForever("kcp", func() error {
			return netutil.ServeKCP(addr, d.ServeConn)
		})
	}
}

func logFaults(d *dispatcher.Dispatcher) {
	for err := range d.Errors() {
		rslog.Errorf("recovered fault: %v", err)
	}
}
