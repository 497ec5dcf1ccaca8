// Command indexerd is the standalone process entry point for the
// indexer SDK: it parses configuration, wires the kv/ledger/processor/
// zmqingest/client components into a component.Harness, and runs until
// an interrupt signal or grace period shutdown. Wiring order matters:
// the processor is created first so its inbound/outbound queues exist,
// then the ZMQ ingest component is handed a router in front of it.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkt-cash/indexer-sdk/client"
	"github.com/pkt-cash/indexer-sdk/component"
	"github.com/pkt-cash/indexer-sdk/config"
	"github.com/pkt-cash/indexer-sdk/er"
	"github.com/pkt-cash/indexer-sdk/internal/queue"
	"github.com/pkt-cash/indexer-sdk/internal/version"
	"github.com/pkt-cash/indexer-sdk/kv"
	"github.com/pkt-cash/indexer-sdk/ledger"
	logpkg "github.com/pkt-cash/indexer-sdk/log"
	"github.com/pkt-cash/indexer-sdk/processor"
	"github.com/pkt-cash/indexer-sdk/rpcnode"
	"github.com/pkt-cash/indexer-sdk/zmqingest"
)

const shutdownGrace = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "indexerd: %v\n", err)
		os.Exit(1)
	}
}

func run() er.R {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return err
	}

	logFile := filepath.Join(cfg.DBPath, "logs", "indexerd.log")
	rotWriter, err := initLogRotator(logFile)
	if err != nil {
		return err
	}
	defer rotWriter.Close()

	level := logpkg.ParseLevelOrDefault(cfg.LogConfiguration, logpkg.LevelInfo)
	_, log := initLoggers(rotWriter, level)
	log.Infof("indexerd %s starting", version.Version)

	var engine kv.Engine
	if cfg.DBPath == "" {
		log.Info("db_path is empty, running with an in-memory kv store")
		engine = kv.Wrap(kv.NewMemEngine())
	} else {
		engine, err = kv.NewBoltEngine(filepath.Join(cfg.DBPath, "indexer.db"))
		if err != nil {
			return err
		}
	}

	l := ledger.New(engine)
	defer l.Close()

	rpc := rpcnode.New(rpcnode.Config{
		URL:      cfg.NetURL,
		Username: cfg.NetUsername,
		Password: cfg.NetPassword,
		Timeout:  config.RPCTimeout(),
	})

	harness := component.New()

	clientEvents := queue.New()
	proc := processor.New(l, rpc, clientEvents, processor.Config{RPCTimeout: config.RPCTimeout()})
	if err := harness.Add(proc); err != nil {
		return err
	}

	// Inbound events reach the processor through a Router so that a
	// future component (e.g. a block-follower) can register alongside
	// it and self-filter, instead of rewiring the producers.
	router := component.NewRouter(proc)

	ingest := zmqingest.New(router, zmqingest.Config{
		URL:    cfg.ZMQURL,
		Topics: splitTopics(cfg.ZMQTopics),
	})
	if err := harness.Add(ingest); err != nil {
		return err
	}

	// indexerd runs standalone with no embedding application, so it is
	// its own client: drain ClientEvents to the log instead of letting
	// them pile up unread in the unbounded queue.
	cl := client.New(router, clientEvents)
	go logClientEvents(cl, log)

	if err := harness.Start(); err != nil {
		return err
	}

	<-interruptListener()
	log.Info("received shutdown signal")
	harness.Shutdown(shutdownGrace)
	return nil
}

func logClientEvents(cl *client.Client, log logpkg.Logger) {
	for {
		evt, ok := cl.Recv()
		if !ok {
			return
		}
		log.Debugf("client event: %s", evt.Kind)
	}
}

func splitTopics(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
