// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: consensus constants and network parameters, immutable,
//     must match across all nodes
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
// These settings can vary between nodes without breaking consensus.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// P2P networking
	P2P P2PConfig

	// REST API server
	REST RESTConfig

	// Tor hidden service
	Tor TorConfig

	// Logging
	Log LogConfig
}

// P2PConfig holds peer-to-peer network settings.
type P2PConfig struct {
	Enabled    bool     `conf:"p2p.enabled"`
	ListenAddr string   `conf:"p2p.listen"`
	Port       int      `conf:"p2p.port"`
	Seeds      []string `conf:"p2p.seeds"`
	MaxPeers   int      `conf:"p2p.maxpeers"`
	UserAgent  string   `conf:"p2p.useragent"`

	// MaxMsgBytesPerSec is the per-direction byte-rate cap over the
	// rolling rate window. Peers exceeding it are dropped without a ban.
	MaxMsgBytesPerSec uint64 `conf:"p2p.ratelimit"`

	ClearBans bool // Clear all peer bans on startup (not persisted in config file).
}

// RESTConfig holds REST API server settings.
type RESTConfig struct {
	Enabled    bool     `conf:"rest.enabled"`
	Addr       string   `conf:"rest.addr"`
	Port       int      `conf:"rest.port"`
	AllowedIPs []string `conf:"rest.allowed"`
}

// TorConfig holds Tor hidden-service settings.
type TorConfig struct {
	Enabled     bool   `conf:"tor.enabled"`
	ControlAddr string `conf:"tor.control"`
	Password    string `conf:"tor.password"`
	// KeyFile points at the 32-byte ed25519 seed used for the onion service.
	KeyFile string `conf:"tor.keyfile"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.shroud
//	macOS:   ~/Library/Application Support/Shroud
//	Windows: %APPDATA%\Shroud
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shroud"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Shroud")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Shroud")
		}
		return filepath.Join(home, "AppData", "Roaming", "Shroud")
	default:
		return filepath.Join(home, ".shroud")
	}
}

// ChainDataDir returns the chain-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// ChainDBDir returns the chain database directory.
func (c *Config) ChainDBDir() string {
	return filepath.Join(c.ChainDataDir(), "chain")
}

// PeerDBDir returns the peer database directory.
func (c *Config) PeerDBDir() string {
	return filepath.Join(c.ChainDataDir(), "peers")
}

// TxHashSetDir returns the txhashset storage directory.
func (c *Config) TxHashSetDir() string {
	return filepath.Join(c.ChainDataDir(), "txhashset")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "shroud.conf")
}
