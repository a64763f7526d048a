// Package config loads the declarative storage configuration: a named map
// of backend definitions plus ordered reader/writer lists referencing it.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Kind tags a backend configuration with its concrete implementation.
type Kind string

const (
	KindFile     Kind = "file"
	KindPostgres Kind = "postgres"
	KindS3       Kind = "s3"
)

type FileOptions struct {
	Root string `mapstructure:"root" json:"root"`
}

type PostgresOptions struct {
	URL string `mapstructure:"url" json:"-"`
}

// String renders the connection URL with any embedded credentials removed.
func (o PostgresOptions) String() string {
	u, err := url.Parse(o.URL)
	if err != nil {
		return "postgres (unparseable url)"
	}
	u.User = nil
	return u.String()
}

func (o PostgresOptions) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"url": o.String()})
}

type S3Options struct {
	Endpoint  string `mapstructure:"endpoint" json:"endpoint"`
	AccessKey string `mapstructure:"access_key" json:"-"`
	SecretKey string `mapstructure:"secret_key" json:"-"`
	Bucket    string `mapstructure:"bucket" json:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl" json:"use_ssl"`
}

func (o S3Options) String() string {
	return fmt.Sprintf("s3 endpoint=%s bucket=%s ssl=%v", o.Endpoint, o.Bucket, o.UseSSL)
}

// Backend is one entry of the named backend map. Exactly the options block
// matching Kind is consulted.
type Backend struct {
	Kind        Kind            `mapstructure:"kind" json:"kind"`
	MaxParallel int             `mapstructure:"max_parallel" json:"max_parallel"`
	File        FileOptions     `mapstructure:"file" json:"file,omitempty"`
	Postgres    PostgresOptions `mapstructure:"postgres" json:"postgres,omitempty"`
	S3          S3Options       `mapstructure:"s3" json:"s3,omitempty"`
}

type StorageConfig struct {
	Backends map[string]Backend `mapstructure:"backends" json:"backends"`
	Readers  []string           `mapstructure:"readers" json:"readers"`
	Writers  []string           `mapstructure:"writers" json:"writers"`
}

type Config struct {
	Storage StorageConfig `mapstructure:"storage" json:"storage"`

	// ScannerOptions holds per-scanner matcher overrides keyed as
	// "<scannerName>.<property>".
	ScannerOptions map[string]string `mapstructure:"scanner_options" json:"scanner_options"`
}

// Default returns the configuration used when no file is present: no
// backends configured, which makes the composite fall back to a single
// local-file backend under the user cache directory.
func Default() *Config {
	return &Config{
		Storage:        StorageConfig{Backends: map[string]Backend{}},
		ScannerOptions: map[string]string{},
	}
}

// backendEnvKeys are the per-backend settings that may be supplied or
// overridden via SCANSTORE_* environment variables. Viper's AutomaticEnv
// only honors env vars during Unmarshal for keys it already knows about,
// so each key is bound explicitly for every backend named in the file.
var backendEnvKeys = []string{
	"kind",
	"max_parallel",
	"file.root",
	"postgres.url",
	"s3.endpoint",
	"s3.access_key",
	"s3.secret_key",
	"s3.bucket",
	"s3.use_ssl",
}

// Load reads the configuration from the given yaml file, falling back to a
// scanstore.yaml in the working directory, overlaid with SCANSTORE_*
// environment variables. A missing file is not an error. Environment
// variables can fill in or override settings of backends the file declares
// (credentials in particular), but cannot introduce new backends.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("scanstore")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SCANSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		v.AddConfigPath(cwd)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for name := range v.GetStringMap("storage.backends") {
		for _, key := range backendEnvKeys {
			if err := v.BindEnv("storage.backends." + name + "." + key); err != nil {
				return nil, fmt.Errorf("bind env for backend %s: %w", name, err)
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that backend kinds are known, kind-specific options are
// present, and the reader/writer lists only reference configured backends.
func (c *Config) Validate() error {
	for name, b := range c.Storage.Backends {
		switch b.Kind {
		case KindFile:
			if b.File.Root == "" {
				return fmt.Errorf("backend %s: file backend requires a root directory", name)
			}
		case KindPostgres:
			if b.Postgres.URL == "" {
				return fmt.Errorf("backend %s: postgres backend requires a url", name)
			}
		case KindS3:
			if b.S3.Endpoint == "" || b.S3.Bucket == "" {
				return fmt.Errorf("backend %s: s3 backend requires an endpoint and a bucket", name)
			}
		default:
			return fmt.Errorf("backend %s: unknown kind %q", name, b.Kind)
		}
	}
	for _, name := range c.Storage.Readers {
		if _, ok := c.Storage.Backends[name]; !ok {
			return fmt.Errorf("reader %q references no configured backend", name)
		}
	}
	for _, name := range c.Storage.Writers {
		if _, ok := c.Storage.Backends[name]; !ok {
			return fmt.Errorf("writer %q references no configured backend", name)
		}
	}
	return nil
}
