package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads the YAML file at path (if any) and overlays environment
// variables on top of it.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error
	if strings.TrimSpace(path) != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	switch c.DBDriver {
	case "postgres":
		if strings.TrimSpace(c.DBURL) == "" {
			return errors.New("config: db_url is required for postgres")
		}
	case "sqlite":
		if strings.TrimSpace(c.DBPath) == "" {
			return errors.New("config: db_path is required for sqlite")
		}
	default:
		return fmt.Errorf("config: unsupported db_driver %q", c.DBDriver)
	}
	if c.TLSEnabled && (c.TLSCert == "" || c.TLSKey == "") {
		return errors.New("config: tls_cert and tls_key are required when tls is enabled")
	}
	if c.Mail.Enabled() && strings.TrimSpace(c.Mail.From) == "" {
		return errors.New("config: mail.from is required when mail.host is set")
	}
	return nil
}

// Usage prints the environment variables understood by AppConfig.
func Usage() (string, error) {
	return cleanenv.GetDescription(&AppConfig{}, nil)
}
