package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. KGX_LOG_LEVEL.
const EnvPrefix = "KGX"

// Config holds all configuration for the application
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Output   OutputConfig   `mapstructure:"output"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json
	// Events is a DuckDB file collecting warnings and errors of each run.
	Events string `mapstructure:"events"`
}

// PathsConfig locates the optional model inputs. Missing files degrade
// the pipeline instead of failing it.
type PathsConfig struct {
	Vocabulary string `mapstructure:"vocabulary"`
	Model      string `mapstructure:"model"`
	CacheDir   string `mapstructure:"cache_dir"`
	Parses     string `mapstructure:"parses"`
}

// ExtractConfig tunes the extraction passes.
type ExtractConfig struct {
	Workers       int      `mapstructure:"workers"`
	StopFragments []string `mapstructure:"stop_fragments"`
}

// OutputConfig selects the sinks a run writes to.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	DuckDB string `mapstructure:"duckdb"`
	Neo4j  bool   `mapstructure:"neo4j"`
	Seed   string `mapstructure:"seed"`
}

// DatabaseConfig holds Neo4j connection settings
type DatabaseConfig struct {
	URI       string `mapstructure:"uri"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Database  string `mapstructure:"database"`
	BatchSize int    `mapstructure:"batch_size"`
	Replace   bool   `mapstructure:"replace"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// Addr is host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from v: defaults, then the config file and
// KGX_ environment variables v was set up with, then the NEO4J_* and
// SERVER_* variables.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}
	if config.Extract.Workers < 1 {
		return nil, fmt.Errorf("extract.workers must be positive, got %d", config.Extract.Workers)
	}
	return config, nil
}

// ReadFile points v at a config file and reads it.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.events", "")

	v.SetDefault("paths.vocabulary", "data/vocabulary.txt")
	v.SetDefault("paths.model", "models/relation_classifier.json")
	v.SetDefault("paths.cache_dir", "")
	v.SetDefault("paths.parses", "")

	v.SetDefault("extract.workers", 4)
	v.SetDefault("extract.stop_fragments", []string{})

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.duckdb", "")
	v.SetDefault("output.neo4j", false)
	v.SetDefault("output.seed", "")

	v.SetDefault("database.uri", "bolt://localhost:7687")
	v.SetDefault("database.username", "neo4j")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "neo4j")
	v.SetDefault("database.batch_size", 500)
	v.SetDefault("database.replace", false)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
}

// overrideWithEnv applies the unprefixed variables the graph tooling shares.
func overrideWithEnv(config *Config) error {
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", port, err)
		}
		config.Server.Port = p
	}
	return nil
}
