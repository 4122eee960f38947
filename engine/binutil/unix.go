//go:build !windows

package binutil

import (
	"os"

	"github.com/roomsync/roomsync/engine/rslog"
	"github.com/sevlyar/go-daemon"
)

// Daemonize reruns the process in background, the parent exits
func Daemonize() *daemon.Context {
	context := new(daemon.Context)
	child, err := context.Reborn()

	if err != nil {
		rslog.Panicf("daemonize failed: %v", err)
	}

	if child != nil {
		rslog.Infof("run in daemon mode")
		os.Exit(0)
		return nil
	}
	return context
}
