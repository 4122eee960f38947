// Package binutil holds the setup shared by the server and client binaries.
package binutil

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"sort"

	"github.com/roomsync/roomsync/engine/rslog"
)

// SetupHTTPServer starts the HTTP server for go tool pprof and the extra handlers, keyed by path
func SetupHTTPServer(ip string, port int, handlers map[string]http.Handler) {
	setupHTTPServer(ip, port, handlers, "", "")
}

// SetupHTTPServerTLS starts the HTTPs server for go tool pprof and the extra handlers
func SetupHTTPServerTLS(ip string, port int, handlers map[string]http.Handler, certFile string, keyFile string) {
	setupHTTPServer(ip, port, handlers, certFile, keyFile)
}

func setupHTTPServer(ip string, port int, handlers map[string]http.Handler, certFile string, keyFile string) {
	if port == 0 {
		// pprof not enabled
		rslog.Infof("http server not enabled")
		return
	}

	httpHost := fmt.Sprintf("%s:%d", ip, port)
	rslog.Infof("http server listening on %s", httpHost)
	rslog.Infof("pprof http://%s/debug/pprof/ ... available commands: ", httpHost)
	rslog.Infof("    go tool pprof http://%s/debug/pprof/heap", httpHost)
	rslog.Infof("    go tool pprof http://%s/debug/pprof/profile", httpHost)
	if keyFile != "" || certFile != "" {
		rslog.Infof("TLS is enabled on http: key=%s, cert=%s", keyFile, certFile)
	}

	paths := make([]string, 0, len(handlers))
	for p := range handlers {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		rslog.Infof("    http://%s%s", httpHost, p)
		http.Handle(p, handlers[p])
	}

	go func() {
		var err error
		if keyFile == "" && certFile == "" {
			err = http.ListenAndServe(httpHost, nil)
		} else {
			err = http.ListenAndServeTLS(httpHost, certFile, keyFile, nil)
		}
		rslog.Errorf("http server on %s quit: %v", httpHost, err)
	}()
}

// SetupLog setup the log system of the component
func SetupLog(component string, logLevel string, logFile string, logStderr bool) {
	rslog.SetSource(component)
	rslog.Infof("Set log level to %s", logLevel)
	rslog.SetLevel(rslog.ParseLevel(logLevel))

	outputs := make([]string, 0, 2)
	if logFile != "" {
		outputs = append(outputs, logFile)
	}
	if logStderr {
		outputs = append(outputs, "stderr")
	}
	if len(outputs) > 0 {
		rslog.SetOutput(outputs)
	}
}
