package config

import (
	"runtime"
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false) are replaced with defaults; explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyReactorDefaults(&cfg.Reactor)
	applyRebuildDefaults(&cfg.Rebuild)
	applyRPCDefaults(&cfg.RPC)
	applyPublishDefaults(&cfg.Publish)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyReactorDefaults sets reactor pool defaults.
func applyReactorDefaults(cfg *ReactorConfig) {
	if cfg.Count == 0 {
		cfg.Count = runtime.NumCPU()
	}
	if cfg.IOBudgetPerChild == 0 {
		cfg.IOBudgetPerChild = 64
	}
	if cfg.ReconfigQueueDepth == 0 {
		cfg.ReconfigQueueDepth = 256
	}
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = 5 * time.Second
	}
}

// applyRebuildDefaults sets rebuild engine defaults.
func applyRebuildDefaults(cfg *RebuildConfig) {
	if cfg.SegmentBlocks == 0 {
		cfg.SegmentBlocks = 1024
	}
	if cfg.MaxConcurrentSegments == 0 {
		cfg.MaxConcurrentSegments = 4
	}
	if cfg.MaxConcurrentJobs == 0 {
		cfg.MaxConcurrentJobs = 2
	}
}

// applyRPCDefaults sets RPC surface defaults.
func applyRPCDefaults(cfg *RPCConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8420"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 0 // unbounded: SSE notification stream holds the connection open
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	applyJWTDefaults(&cfg.JWT)
}

// applyJWTDefaults sets JWT verification defaults.
func applyJWTDefaults(cfg *JWTConfig) {
	if cfg.Issuer == "" {
		cfg.Issuer = "nexus-control-plane"
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 30 * time.Second
	}
}

// applyPublishDefaults sets publish-layer defaults.
func applyPublishDefaults(cfg *PublishConfig) {
	if cfg.DefaultProtocol == "" {
		cfg.DefaultProtocol = "nvmf"
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = 30 * time.Second
	}

	if cfg.NVMf.ListenAddr == "" {
		cfg.NVMf.ListenAddr = "0.0.0.0:4420"
	}
	if cfg.NVMf.SubsystemPrefix == "" {
		cfg.NVMf.SubsystemPrefix = "nqn.2024-01.io.nexus"
	}

	if cfg.ISCSI.ListenAddr == "" {
		cfg.ISCSI.ListenAddr = "0.0.0.0:3260"
	}
	if cfg.ISCSI.TargetPrefix == "" {
		cfg.ISCSI.TargetPrefix = "iqn.2024-01.io.nexus"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// Useful for generating sample configuration files, tests, and documentation.
// The JWT secret is set to a fixed placeholder so that the returned Config
// passes validation; the config file's rpc.jwt.secret or
// NEXUSD_RPC_JWT_SECRET replaces it when a config file is loaded.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{},
		Reactor: ReactorConfig{},
		Rebuild: RebuildConfig{},
		RPC: RPCConfig{
			JWT: JWTConfig{
				Secret: "dev-secret-change-me",
			},
		},
		Publish: PublishConfig{},
	}

	ApplyDefaults(cfg)
	return cfg
}
