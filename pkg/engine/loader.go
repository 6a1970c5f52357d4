package engine

import (
	"encoding/json"
	"os"
)

// LoadConfig reads and parses a runner config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	config.Normalize()
	return &config, nil
}
