package config

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		P2P: P2PConfig{
			Enabled:    true,
			ListenAddr: "0.0.0.0",
			Port:       13414,
			MaxPeers:   50,
			UserAgent:  "shroud-node",
			// 50 KiB/s per direction; generous for gossip, tight enough
			// to shed flooding peers.
			MaxMsgBytesPerSec: 50 * 1024,
			Seeds:             []string{},
		},
		REST: RESTConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       13413,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Tor: TorConfig{
			Enabled:     false,
			ControlAddr: "127.0.0.1:9051",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.P2P.Port = 23414
	cfg.REST.Port = 23413
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
