package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the nexusd daemon configuration.
//
// This structure captures the static configuration of a single Nexus core
// instance: logging, reactor placement, rebuild throttling, the RPC control
// surface, and publish-layer defaults. Per-Nexus and per-child state (which
// Nexuses exist, which children they own) is NOT configured here — it is
// created at runtime through the RPC surface and held in the in-memory
// Nexus registry.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (NEXUSD_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Reactor controls the reactor pool and per-child I/O throttling
	Reactor ReactorConfig `mapstructure:"reactor" yaml:"reactor"`

	// Rebuild controls the rebuild engine's concurrency and segment size
	Rebuild RebuildConfig `mapstructure:"rebuild" yaml:"rebuild"`

	// RPC configures the control-plane RPC surface (chi router, JWT auth)
	RPC RPCConfig `mapstructure:"rpc" yaml:"rpc"`

	// Publish configures default listen addresses for the publish layer
	Publish PublishConfig `mapstructure:"publish" yaml:"publish"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ReactorConfig holds reactor-pool settings. They are loaded, defaulted
// and validated, but no other package reads them: no reactor pool is
// started, each Nexus's reconfiguration engine takes its ack timeout from
// the CreateNexus request, and the engine's event channel is unbuffered.
type ReactorConfig struct {
	// Count is the number of reactors.
	// Default: runtime.NumCPU()
	Count int `mapstructure:"count" validate:"omitempty,min=1" yaml:"count"`

	// IOBudgetPerChild is the per-child in-flight I/O budget.
	// Default: 64
	IOBudgetPerChild int64 `mapstructure:"io_budget_per_child" validate:"omitempty,min=1" yaml:"io_budget_per_child"`

	// ReconfigQueueDepth is the reconfiguration event queue depth.
	// Default: 256
	ReconfigQueueDepth int `mapstructure:"reconfig_queue_depth" validate:"omitempty,min=1" yaml:"reconfig_queue_depth"`

	// AckTimeout is the snapshot acknowledgement timeout.
	// Default: 5s
	AckTimeout time.Duration `mapstructure:"ack_timeout" validate:"omitempty,gt=0" yaml:"ack_timeout"`
}

// RebuildConfig controls the rebuild engine.
type RebuildConfig struct {
	// SegmentBlocks is the unit of work copied per rebuild iteration.
	// Default: 1024 (512KiB at a 512-byte block size)
	SegmentBlocks uint32 `mapstructure:"segment_blocks" validate:"omitempty,min=1" yaml:"segment_blocks"`

	// MaxConcurrentSegments bounds in-flight segment copies across all
	// rebuild jobs of one Nexus, via golang.org/x/sync/semaphore.Weighted.
	// Default: 4
	MaxConcurrentSegments int64 `mapstructure:"max_concurrent_segments" validate:"omitempty,min=1" yaml:"max_concurrent_segments"`

	// MaxConcurrentJobs bounds the number of rebuild jobs running
	// simultaneously on one Nexus.
	// Default: 2
	MaxConcurrentJobs int64 `mapstructure:"max_concurrent_jobs" validate:"omitempty,min=1" yaml:"max_concurrent_jobs"`
}

// RPCConfig configures the control-plane RPC surface.
type RPCConfig struct {
	// ListenAddr is the HTTP listen address for the RPC surface.
	// Default: "127.0.0.1:8420"
	ListenAddr string `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`

	// ReadTimeout is the HTTP server read timeout.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"omitempty,gt=0" yaml:"read_timeout"`

	// WriteTimeout is the HTTP server write timeout. Kept generous because
	// the SSE notification stream holds the connection open indefinitely.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP server idle timeout for keep-alive connections.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"omitempty,gt=0" yaml:"idle_timeout"`

	// JWT configures bearer-token authentication for the RPC surface.
	JWT JWTConfig `mapstructure:"jwt" yaml:"jwt"`
}

// JWTConfig configures bearer-token verification for the RPC surface.
// nexusd verifies tokens issued by an external control plane; it does not
// itself run a login flow.
type JWTConfig struct {
	// Secret is the HMAC signing secret used to verify bearer tokens.
	Secret string `mapstructure:"secret" validate:"required" yaml:"secret"`

	// Issuer is the expected "iss" claim.
	Issuer string `mapstructure:"issuer" validate:"required" yaml:"issuer"`

	// ClockSkew is the allowed leeway when checking token expiry.
	// Default: 30s
	ClockSkew time.Duration `mapstructure:"clock_skew" validate:"omitempty,gte=0" yaml:"clock_skew"`
}

// PublishConfig sets defaults for the publish layer's transport targets.
type PublishConfig struct {
	// DefaultProtocol is the protocol used when a publish RPC omits one.
	// Valid values: nvmf, iscsi, local
	DefaultProtocol string `mapstructure:"default_protocol" validate:"omitempty,oneof=nvmf iscsi local" yaml:"default_protocol"`

	// NVMf configures the default NVMe-oF target listener.
	NVMf NVMfConfig `mapstructure:"nvmf" yaml:"nvmf"`

	// ISCSI configures the default iSCSI target listener.
	ISCSI ISCSIConfig `mapstructure:"iscsi" yaml:"iscsi"`

	// DrainTimeout bounds how long Unpublish waits for in-flight initiator
	// sessions to end before closing the target's listener. Sessions still
	// open at the timeout are not closed by the target.
	// Default: 30s
	DrainTimeout time.Duration `mapstructure:"drain_timeout" validate:"omitempty,gt=0" yaml:"drain_timeout"`
}

// NVMfConfig configures the NVMe-oF publish target.
type NVMfConfig struct {
	// ListenAddr is the TCP address the NVMe-oF target listens on.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// SubsystemPrefix prefixes generated NQNs, e.g. "nqn.2024-01.io.nexus".
	SubsystemPrefix string `mapstructure:"subsystem_prefix" yaml:"subsystem_prefix"`
}

// ISCSIConfig configures the iSCSI publish target.
type ISCSIConfig struct {
	// ListenAddr is the TCP address the iSCSI target listens on.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// TargetPrefix prefixes generated IQNs, e.g. "iqn.2024-01.io.nexus".
	TargetPrefix string `mapstructure:"target_prefix" yaml:"target_prefix"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (NEXUSD_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Specify a config file:\n"+
				"  nexusd start --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the JWT signing secret lives in this file.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("NEXUSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nexusd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "nexusd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
