package app

import "errors"

// Config holds all the configuration an App instance needs to run a build.
type Config struct {
	// ManifestPath is a .hcl file or a directory containing .hcl files.
	ManifestPath string
	// Root is the exec root: source paths resolve against it and commands
	// run inside it. Empty means the current directory.
	Root string

	LogFormat   string
	LogLevel    string
	WorkerCount int
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ManifestPath == "" {
		return nil, errors.New("ManifestPath is a required configuration field and cannot be empty")
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	return &cfg, nil
}
