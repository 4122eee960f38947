package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/roomsync/roomsync/engine/dispatcher"
	"github.com/roomsync/roomsync/engine/rslog"
)

var (
	args struct {
		configFile      string
		logLevel        string
		runInDaemonMode bool
		shards          int
	}
	signalChan = make(chan os.Signal, 1)
)

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.BoolVar(&args.runInDaemonMode, "d", false, "run in daemon mode")
	flag.IntVar(&args.shards, "shards", -1, "set number of shards, will override shards in config")
	flag.Parse()
}

func setupSignals(d *dispatcher.Dispatcher) {
	rslog.Infof("Setup signals ...")
	signal.Ignore(syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			sig := <-signalChan
			if sig == syscall.SIGINT || sig == syscall.SIGTERM {
				rslog.Infof("Terminating server ...")
				d.Stop()
				rslog.Infof("Server terminated gracefully.")
				os.Exit(0)
			} else {
				rslog.Errorf("unexpected signal: %s", sig)
			}
		}
	}()
}
