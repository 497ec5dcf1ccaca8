package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"

	"github.com/pkt-cash/indexer-sdk/component"
	"github.com/pkt-cash/indexer-sdk/er"
	"github.com/pkt-cash/indexer-sdk/ledger"
	logpkg "github.com/pkt-cash/indexer-sdk/log"
	"github.com/pkt-cash/indexer-sdk/processor"
	"github.com/pkt-cash/indexer-sdk/zmqingest"
)

// initLogRotator opens logFile for append, wiring a rolling log file
// the same way pktd's log.go does via jrick/logrotate/rotator:
// up to 10 rolled files of 10MB each, uncompressed.
func initLogRotator(logFile string) (io.WriteCloser, er.R) {
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, er.E(err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 10)
	if err != nil {
		return nil, er.E(err)
	}
	return r, nil
}

// initLoggers creates the process-wide log backend and assigns each
// package's subsystem Logger, following pktd's per-package
// UseLogger convention (e.g. lnd/channeldb/log.go). The returned
// backend's "MAIN" logger is for use by the entry point itself, so the
// whole process shares one backend goroutine and one output file.
func initLoggers(w io.Writer, level logpkg.Level) (*logpkg.Backend, logpkg.Logger) {
	backend := logpkg.NewBackend(w)

	setup := map[string]func(logpkg.Logger){
		"LGDR": ledger.UseLogger,
		"PROC": processor.UseLogger,
		"CMPT": component.UseLogger,
		"ZMQI": zmqingest.UseLogger,
	}
	for tag, use := range setup {
		l := backend.Logger(tag)
		l.SetLevel(level)
		use(l)
	}

	main := backend.Logger("MAIN")
	main.SetLevel(level)
	return backend, main
}
