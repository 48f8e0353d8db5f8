package storkit

import (
	"github.com/gobeaver/beaver-kit/config"
)

// Config holds environment-driven settings for the built-in drivers.
// Drivers receive their values through the flat option maps produced by
// Options, so programmatic and env-based construction share one path.
type Config struct {
	// Default driver scheme to use (memory, fs, s3, badgerkv)
	Driver string `env:"STORKIT_DRIVER,default:memory"`

	// Filesystem driver configuration
	FSRoot string `env:"STORKIT_FS_ROOT,default:./storage"`

	// S3 driver configuration
	S3Region          string `env:"STORKIT_S3_REGION,default:us-east-1"`
	S3Bucket          string `env:"STORKIT_S3_BUCKET"`
	S3Prefix          string `env:"STORKIT_S3_PREFIX"`
	S3Endpoint        string `env:"STORKIT_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"STORKIT_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"STORKIT_S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle  bool   `env:"STORKIT_S3_FORCE_PATH_STYLE,default:false"`

	// Badger driver configuration
	BadgerDir      string `env:"STORKIT_BADGER_DIR"`
	BadgerInMemory bool   `env:"STORKIT_BADGER_IN_MEMORY,default:false"`
}

// GetConfig returns config loaded from environment.
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, WrapError(KindInvalidInput, OpOpen, "", err)
	}
	return cfg, nil
}

// Options flattens the config into the option map for its scheme.
func (c *Config) Options() map[string]string {
	switch Scheme(c.Driver) {
	case "fs":
		return map[string]string{"root": c.FSRoot}
	case "s3":
		opts := map[string]string{
			"region": c.S3Region,
			"bucket": c.S3Bucket,
		}
		if c.S3Prefix != "" {
			opts["prefix"] = c.S3Prefix
		}
		if c.S3Endpoint != "" {
			opts["endpoint"] = c.S3Endpoint
		}
		if c.S3AccessKeyID != "" {
			opts["access_key_id"] = c.S3AccessKeyID
			opts["secret_access_key"] = c.S3SecretAccessKey
		}
		if c.S3ForcePathStyle {
			opts["force_path_style"] = "true"
		}
		return opts
	case "badgerkv":
		opts := map[string]string{"dir": c.BadgerDir}
		if c.BadgerInMemory {
			opts["in_memory"] = "true"
		}
		return opts
	default:
		return map[string]string{}
	}
}

// OpenFromEnv builds an Operator from environment configuration, applying
// the given layers.
func OpenFromEnv(layers ...Layer) (*Operator, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return Open(Scheme(cfg.Driver), cfg.Options(), layers...)
}
