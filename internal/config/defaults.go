package config

import "github.com/bobmcallan/vision-mcp/internal/common"

// DefaultAPIBaseURL is the vision tools API endpoint, used when neither the
// configuration nor the catalog names one.
const DefaultAPIBaseURL = "https://api.va.landing.ai"

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:      "vision-tools-api",
			Transport: "stdio",
			Port:      "4243",
		},
		Logging: common.LoggingConfig{
			Level:   "info",
			Outputs: []string{"console"},
		},
	}
}
