// Package config defines the SDK's single configuration record,
// parsed with github.com/jessevdk/go-flags the same way
// pktd's top-level config.go builds its option struct: struct
// tags for short/long flag name and description, sane defaults applied
// before parsing, command-line values taking precedence.
package config

import (
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/pkt-cash/indexer-sdk/er"
)

const (
	defaultZMQTopics           = "rawtx,sequence"
	defaultSaveBlockCacheCount = 100
	defaultLogLevel            = "info"
	defaultRPCTimeout          = 10 * time.Second
)

var errType = er.NewErrorType("config")

// ErrBadConfig flags a configuration record that fails validation.
var ErrBadConfig = errType.CodeWithDetail("ErrBadConfig", "invalid configuration")

// Config is the SDK's single configuration record: mq.zmq_url,
// mq.zmq_topic, net.url/username/password, db_path,
// save_block_cache_count, log_configuration.
type Config struct {
	ZMQURL    string `long:"mq.zmq_url" description:"ZMQ publisher endpoint of the node, e.g. tcp://127.0.0.1:28332"`
	ZMQTopics string `long:"mq.zmq_topic" default:"rawtx,sequence" description:"Comma-separated ZMQ topics to subscribe to"`

	NetURL      string `long:"net.url" description:"Bitcoin JSON-RPC endpoint of the node"`
	NetUsername string `long:"net.username" description:"Bitcoin JSON-RPC username"`
	NetPassword string `long:"net.password" default-mask:"-" description:"Bitcoin JSON-RPC password"`

	DBPath string `long:"db_path" description:"Directory holding the durable KV store"`

	SaveBlockCacheCount int `long:"save_block_cache_count" default:"100" description:"Number of recent block heights retained for reorg bookkeeping"`

	LogConfiguration string `long:"log_configuration" default:"info" description:"Log level applied to every subsystem (trace, debug, info, warn, error, critical, off); an unrecognized value means info"`
}

// Default returns a Config populated with the same defaults go-flags
// would apply from the struct tags, for callers constructing a Config
// programmatically instead of through Parse.
func Default() Config {
	return Config{
		ZMQTopics:           defaultZMQTopics,
		SaveBlockCacheCount: defaultSaveBlockCacheCount,
		LogConfiguration:    defaultLogLevel,
	}
}

// Parse parses args (normally os.Args[1:]) into a Config, following
// pktd's command-line-only subset of loadConfig: defaults
// first, then overridden by whatever flags are present.
func Parse(args []string) (*Config, er.R) {
	cfg := Default()
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, er.E(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the options the SDK cannot run without.
func (c *Config) Validate() er.R {
	if c.ZMQURL == "" {
		return ErrBadConfig.New("mq.zmq_url is required", nil)
	}
	if c.NetURL == "" {
		return ErrBadConfig.New("net.url is required", nil)
	}
	if c.SaveBlockCacheCount <= 0 {
		return ErrBadConfig.New("save_block_cache_count must be positive", nil)
	}
	return nil
}

// RPCTimeout is not user-configurable; it is a fixed operational
// constant shared by rpcnode and processor.
func RPCTimeout() time.Duration {
	return defaultRPCTimeout
}
