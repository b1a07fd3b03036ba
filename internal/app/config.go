package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ManifestPath  string // dataset manifest (.hcl)
	ModelTestPath string // optional IQ-TREE report
	TemplateDir   string // optional template overlay
	OutputPath    string // empty writes to stdout

	RenamePolicy string
	LogFormat    string
	LogLevel     string
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ManifestPath == "" {
		return nil, errors.New("ManifestPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
