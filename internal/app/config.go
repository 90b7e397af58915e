package app

import (
	"fmt"

	coreconfig "github.com/m3rciful/topicrelay/core/config"
	coredatabase "github.com/m3rciful/topicrelay/core/database"
)

// Config is the full bot configuration: the reusable core plus storage.
type Config struct {
	coreconfig.Config `yaml:",inline"`
	Database          coredatabase.Config `yaml:"database"`
}

// CoreConfig exposes the embedded core configuration to the runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// LoadConfig reads the YAML file at path, overlays the environment and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := normalizeDatabase(&cfg.Database); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalizeDatabase(db *coredatabase.Config) error {
	switch db.Driver {
	case "":
		db.Driver = coredatabase.DriverPostgres
	case coredatabase.DriverPostgres, coredatabase.DriverMemory:
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: postgres, memory", db.Driver)
	}
	if db.Driver == coredatabase.DriverPostgres {
		if db.Host == "" || db.Name == "" {
			return fmt.Errorf("database.host and database.name are required for the postgres driver")
		}
		if db.Port == "" {
			db.Port = "5432"
		}
	}
	return nil
}
