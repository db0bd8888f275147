package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	forwardcache "github.com/always-cache/forward-cache"
	"github.com/always-cache/forward-cache/cache"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	configFilenameFlag string
	portFlag           int
	capacityFlag       int
	providerFlag       string
	sqliteFileFlag     string
	eventLogFlag       string
	verbosityTraceFlag bool
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	flag.IntVar(&capacityFlag, "capacity", 0, "Cache capacity in entries (overrides config)")
	flag.StringVar(&providerFlag, "provider", "", "Caching provider to use: memory or sqlite")
	flag.StringVar(&sqliteFileFlag, "sqlite-file", "", "Database file for the sqlite provider")
	flag.StringVar(&eventLogFlag, "log", "", "Path of the request event log")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
}

func main() {
	flag.Parse()

	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stdout})

	var config forwardcache.Config
	if configFilenameFlag != "" {
		var err error
		config, err = forwardcache.GetConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
	}

	if portFlag > 0 {
		config.Port = portFlag
	}
	if config.Port <= 0 {
		config.Port = 5555
	}
	if capacityFlag > 0 {
		config.CacheCapacity = capacityFlag
	}
	if providerFlag != "" {
		config.Provider = providerFlag
	}
	if sqliteFileFlag != "" {
		config.SQLiteFile = sqliteFileFlag
	}
	if eventLogFlag != "" {
		config.EventLog = eventLogFlag
	}
	if config.EventLog == "" {
		config.EventLog = "log.txt"
	}

	var store cache.Store
	switch config.Provider {
	case "", "memory":
		store = cache.NewLRU(config.CacheCapacity)
	case "sqlite":
		var err error
		store, err = cache.NewSQLite(config.SQLiteFile, config.CacheCapacity)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open sqlite cache")
		}
	default:
		log.Fatal().Msgf("Unsupported cache provider: %s", config.Provider)
	}

	events, err := forwardcache.OpenEventLog(config.EventLog)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open event log")
	}
	defer events.Close()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", config.Port))
	if err != nil {
		log.Fatal().Err(err).Int("port", config.Port).Msg("Could not listen")
	}
	log.Info().Int("port", config.Port).Str("provider", config.Provider).Msg("Proxy listening")

	proxy := forwardcache.NewProxy(store, events, log.Logger)
	if err := proxy.Serve(ln); err != nil {
		log.Fatal().Err(err).Msg("Proxy stopped")
	}
}
