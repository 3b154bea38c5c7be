package config

import (
	"fmt"
	"net"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p.port must be in range [0, 65535]")
	}
	if cfg.REST.Port < 0 || cfg.REST.Port > 65535 {
		return fmt.Errorf("rest.port must be in range [0, 65535]")
	}
	if cfg.P2P.MaxPeers < 0 {
		return fmt.Errorf("p2p.maxpeers must not be negative")
	}
	for i, seed := range cfg.P2P.Seeds {
		if _, _, err := net.SplitHostPort(seed); err != nil {
			return fmt.Errorf("p2p.seeds[%d] %q is not host:port: %w", i, seed, err)
		}
	}
	if cfg.Tor.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Tor.ControlAddr); err != nil {
			return fmt.Errorf("tor.control %q is not host:port: %w", cfg.Tor.ControlAddr, err)
		}
	}
	return nil
}
