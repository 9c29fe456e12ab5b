package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// config is the optional plvm.yaml file's shape: debug trace level and
// the CodeUnit disk-cache directory, read the way the teacher's own
// config-bearing commands use gopkg.in/yaml.v3 for structured fixtures.
type config struct {
	Debug string `yaml:"debug"` // "none", "trace", "verbose" — see vm.DebugLevel
	Cache string `yaml:"cache"` // path to the sqlite CodeUnit cache; "" disables it
}

func defaultConfig() config {
	return config{Debug: "none", Cache: ""}
}

// loadConfig reads plvm.yaml from path if present; a missing file is
// not an error, it just yields defaultConfig().
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
