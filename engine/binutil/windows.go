//go:build windows

package binutil

import "github.com/roomsync/roomsync/engine/rslog"

type nopRelease int

func (nopRelease) Release() error {
	return nil
}

// Daemonize does nothing on windows
func Daemonize() nopRelease {
	rslog.Warnf("can not run in daemon mode in windows, -d ignored")
	return nopRelease(0)
}
