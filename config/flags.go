package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// P2P
	P2P       bool
	P2PPort   int
	Seeds     string
	MaxPeers  int
	RateLimit uint64
	ClearBans bool

	// REST
	REST        bool
	RESTAddr    string
	RESTPort    int
	RESTAllowed string

	// Tor
	Tor        bool
	TorControl string
	TorKeyFile string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetP2P     bool
	SetREST    bool
	SetTor     bool
	SetLogJSON bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("shroudd", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.Bool("testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// P2P
	fs.BoolVar(&f.P2P, "p2p", true, "Enable P2P networking")
	fs.IntVar(&f.P2PPort, "p2p-port", 0, "P2P listen port")
	fs.StringVar(&f.Seeds, "seeds", "", "Seed nodes as comma-separated host:port pairs")
	fs.IntVar(&f.MaxPeers, "maxpeers", 0, "Maximum number of peers")
	fs.Uint64Var(&f.RateLimit, "ratelimit", 0, "Per-direction peer byte-rate cap (bytes/second)")
	fs.BoolVar(&f.ClearBans, "clearbans", false, "Clear all peer bans on startup")

	// REST
	fs.BoolVar(&f.REST, "rest", true, "Enable REST API server")
	fs.StringVar(&f.RESTAddr, "rest-addr", "", "REST listen address")
	fs.IntVar(&f.RESTPort, "rest-port", 0, "REST listen port")
	fs.StringVar(&f.RESTAllowed, "rest-allowed", "", "Allowed IPs for the REST API")

	// Tor
	fs.BoolVar(&f.Tor, "tor", false, "Publish the P2P listener as a Tor hidden service")
	fs.StringVar(&f.TorControl, "tor-control", "", "Tor control port address (host:port)")
	fs.StringVar(&f.TorKeyFile, "tor-keyfile", "", "Path to the onion service ed25519 key")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	// Custom usage
	fs.Usage = func() {
		printUsage()
	}

	// Parse
	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Handle --testnet shorthand
	if isFlagSet(fs, "testnet") {
		f.Network = "testnet"
	}
	f.SetP2P = isFlagSet(fs, "p2p")
	f.SetREST = isFlagSet(fs, "rest")
	f.SetTor = isFlagSet(fs, "tor")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	// Detect unparsed flags caused by positional arguments stopping the parser.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(os.Stderr, "Error: flag %q was not parsed (positional argument stopped parsing)\n", arg)
			os.Exit(1)
		}
	}

	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// P2P
	if f.SetP2P {
		cfg.P2P.Enabled = f.P2P
	}
	if f.P2PPort != 0 {
		cfg.P2P.Port = f.P2PPort
	}
	if f.Seeds != "" {
		cfg.P2P.Seeds = parseStringList(f.Seeds)
	}
	if f.MaxPeers != 0 {
		cfg.P2P.MaxPeers = f.MaxPeers
	}
	if f.RateLimit != 0 {
		cfg.P2P.MaxMsgBytesPerSec = f.RateLimit
	}
	if f.ClearBans {
		cfg.P2P.ClearBans = true
	}

	// REST
	if f.SetREST {
		cfg.REST.Enabled = f.REST
	}
	if f.RESTAddr != "" {
		cfg.REST.Addr = f.RESTAddr
	}
	if f.RESTPort != 0 {
		cfg.REST.Port = f.RESTPort
	}
	if f.RESTAllowed != "" {
		cfg.REST.AllowedIPs = parseStringList(f.RESTAllowed)
	}

	// Tor
	if f.SetTor {
		cfg.Tor.Enabled = f.Tor
	}
	if f.TorControl != "" {
		cfg.Tor.ControlAddr = f.TorControl
	}
	if f.TorKeyFile != "" {
		cfg.Tor.KeyFile = f.TorKeyFile
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet reports whether a flag was explicitly passed on the command line.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})
	return set
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `shroudd - Shroud full node

Usage:
  shroudd [flags]

Core:
  --network <name>      Network type (mainnet or testnet)
  --testnet             Shorthand for --network=testnet
  --datadir <path>      Data directory path
  --config, -c <path>   Config file path

P2P:
  --p2p                 Enable P2P networking (default true)
  --p2p-port <port>     P2P listen port
  --seeds <list>        Seed nodes (comma-separated host:port)
  --maxpeers <n>        Maximum number of peers
  --ratelimit <n>       Per-direction peer byte-rate cap (bytes/second)
  --clearbans           Clear all peer bans on startup

REST API:
  --rest                Enable REST API server (default true)
  --rest-addr <addr>    REST listen address
  --rest-port <port>    REST listen port
  --rest-allowed <list> Allowed IPs for the REST API

Tor:
  --tor                 Publish the P2P listener as a Tor hidden service
  --tor-control <addr>  Tor control port address (host:port)
  --tor-keyfile <path>  Path to the onion service ed25519 key

Logging:
  --log-level <level>   Log level (debug, info, warn, error)
  --log-file <path>     Log file path
  --log-json            Output logs as JSON

Other:
  --help, -h            Show this help message
  --version, -v         Show version information
`)
}
