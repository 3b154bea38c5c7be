package config

import "fmt"

// Load builds the effective configuration: defaults for the selected
// network, overlaid by the config file, overlaid by command-line flags.
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	network := Mainnet
	if flags.Network != "" {
		network = NetworkType(flags.Network)
	}
	cfg := Default(network)

	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	path := flags.Config
	if path == "" {
		path = cfg.ConfigFile()
	}
	values, err := LoadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config file %s: %w", path, err)
	}
	if err := ApplyFileConfig(cfg, values); err != nil {
		return nil, nil, err
	}

	// Flags win over the file.
	ApplyFlags(cfg, flags)

	if err := Validate(cfg); err != nil {
		return nil, nil, err
	}
	return cfg, flags, nil
}
