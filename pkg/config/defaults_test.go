package config

import (
	"runtime"
	"testing"
	"time"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_Reactor(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Reactor.Count != runtime.NumCPU() {
		t.Errorf("Expected default reactor count %d, got %d", runtime.NumCPU(), cfg.Reactor.Count)
	}
	if cfg.Reactor.IOBudgetPerChild != 64 {
		t.Errorf("Expected default io budget 64, got %d", cfg.Reactor.IOBudgetPerChild)
	}
	if cfg.Reactor.ReconfigQueueDepth != 256 {
		t.Errorf("Expected default reconfig queue depth 256, got %d", cfg.Reactor.ReconfigQueueDepth)
	}
	if cfg.Reactor.AckTimeout != 5*time.Second {
		t.Errorf("Expected default ack timeout 5s, got %v", cfg.Reactor.AckTimeout)
	}
}

func TestApplyDefaults_Rebuild(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Rebuild.SegmentBlocks != 1024 {
		t.Errorf("Expected default segment size 1024 blocks, got %d", cfg.Rebuild.SegmentBlocks)
	}
	if cfg.Rebuild.MaxConcurrentSegments != 4 {
		t.Errorf("Expected default max concurrent segments 4, got %d", cfg.Rebuild.MaxConcurrentSegments)
	}
	if cfg.Rebuild.MaxConcurrentJobs != 2 {
		t.Errorf("Expected default max concurrent jobs 2, got %d", cfg.Rebuild.MaxConcurrentJobs)
	}
}

func TestApplyDefaults_RPC(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.RPC.ListenAddr != "127.0.0.1:8420" {
		t.Errorf("Expected default RPC listen addr, got %q", cfg.RPC.ListenAddr)
	}
	if cfg.RPC.ReadTimeout != 10*time.Second {
		t.Errorf("Expected default read timeout 10s, got %v", cfg.RPC.ReadTimeout)
	}
	if cfg.RPC.IdleTimeout != 60*time.Second {
		t.Errorf("Expected default idle timeout 60s, got %v", cfg.RPC.IdleTimeout)
	}
	if cfg.RPC.JWT.Issuer != "nexus-control-plane" {
		t.Errorf("Expected default JWT issuer, got %q", cfg.RPC.JWT.Issuer)
	}
}

func TestApplyDefaults_Publish(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Publish.DefaultProtocol != "nvmf" {
		t.Errorf("Expected default publish protocol 'nvmf', got %q", cfg.Publish.DefaultProtocol)
	}
	if cfg.Publish.NVMf.ListenAddr == "" {
		t.Error("Expected default nvmf listen addr to be set")
	}
	if cfg.Publish.ISCSI.ListenAddr == "" {
		t.Error("Expected default iscsi listen addr to be set")
	}
	if cfg.Publish.DrainTimeout != 30*time.Second {
		t.Errorf("Expected default drain timeout 30s, got %v", cfg.Publish.DrainTimeout)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/nexusd.log",
		},
		Reactor: ReactorConfig{
			Count: 4,
		},
		ShutdownTimeout: 60 * time.Second,
	}

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected explicit level 'DEBUG' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected explicit format 'json' to be preserved, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "/var/log/nexusd.log" {
		t.Errorf("Expected explicit output to be preserved, got %q", cfg.Logging.Output)
	}
	if cfg.Reactor.Count != 4 {
		t.Errorf("Expected explicit reactor count 4 to be preserved, got %d", cfg.Reactor.Count)
	}
	if cfg.ShutdownTimeout != 60*time.Second {
		t.Errorf("Expected explicit timeout 60s to be preserved, got %v", cfg.ShutdownTimeout)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level == "" {
		t.Error("Default config missing logging level")
	}
	if cfg.RPC.ListenAddr == "" {
		t.Error("Default config missing RPC listen address")
	}
	if cfg.RPC.JWT.Secret == "" {
		t.Error("Default config missing JWT secret")
	}
	if cfg.Reactor.Count == 0 {
		t.Error("Default config missing reactor count")
	}
}
