package forwardcache

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Port to listen on. Defaults to 5555.
	Port int `yaml:"port"`
	// CacheCapacity is the maximum number of cached responses.
	CacheCapacity int `yaml:"cacheCapacity"`
	// Provider selects the cache store: "memory" (default) or "sqlite".
	Provider string `yaml:"provider"`
	// SQLiteFile is the database path for the sqlite provider.
	// Empty means an in-memory database.
	SQLiteFile string `yaml:"sqliteFile"`
	// EventLog is the path of the append-only request log.
	EventLog string `yaml:"eventLog"`
}

func GetConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
