package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

var allEnvVars = []string{
	"SCIP_GATEWAY_URL", "SCIP_PROTOCOL_VERSION", "SCIP_HTTP_TIMEOUT", "SCIP_DEFAULT_INVOKE_TIMEOUT", "SCIP_GATEWAYS_FILE",
	"SCIP_CALLBACK_URL", "SCIP_CALLBACK_PATH",
	"COMMS_ENABLED", "COMMS_URL", "SERVICE_NAME", "SCIP_CALLBACK_SUBJECT", "SCIP_EVENT_SUBJECT",
	"JOURNAL_ENABLED", "DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"SCIP_HTTP_ADDR", "HTTP_PORT", "HEALTH_CHECK_TIMEOUT", "SHUTDOWN_TIMEOUT", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range allEnvVars {
		// t.Setenv restores the original value after the test.
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func mustLoad(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}
	return cfg
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := mustLoad(t)

	if cfg.ProtocolVersion != "2.0.0" {
		t.Errorf("config:config_test - ProtocolVersion = %q, want 2.0.0", cfg.ProtocolVersion)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("config:config_test - HTTPTimeout = %v, want 30s", cfg.HTTPTimeout)
	}
	if cfg.DefaultInvokeTimeout != 0 {
		t.Errorf("config:config_test - DefaultInvokeTimeout = %v, want 0", cfg.DefaultInvokeTimeout)
	}
	if cfg.CallbackPath != "/callback" {
		t.Errorf("config:config_test - CallbackPath = %q, want /callback", cfg.CallbackPath)
	}
	if cfg.COMMSEnabled {
		t.Error("config:config_test - expected COMMSEnabled=false by default")
	}
	if cfg.COMMSName != "scip-client" {
		t.Errorf("config:config_test - COMMSName = %q, want scip-client", cfg.COMMSName)
	}
	if cfg.CallbackSubject != "scip.client.callback" || cfg.EventSubject != "scip.client.ops" {
		t.Errorf("config:config_test - subjects = %q, %q", cfg.CallbackSubject, cfg.EventSubject)
	}
	if cfg.JournalEnabled || cfg.RunMigrations {
		t.Error("config:config_test - journal and migrations must be off by default")
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want migrations", cfg.MigrationPath)
	}
	if cfg.HTTPPort != 8081 {
		t.Errorf("config:config_test - HTTPPort = %d, want 8081", cfg.HTTPPort)
	}
	if cfg.HealthCheckTimeout != 5*time.Second || cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("config:config_test - timeouts = %v, %v", cfg.HealthCheckTimeout, cfg.ShutdownTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want info", cfg.LogLevel)
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults must validate for serve: %v", err)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	overrides := map[string]string{
		"SCIP_GATEWAY_URL":            "http://gateway:8080/scl",
		"SCIP_PROTOCOL_VERSION":       "2.1",
		"SCIP_HTTP_TIMEOUT":           "5s",
		"SCIP_DEFAULT_INVOKE_TIMEOUT": "2m",
		"SCIP_CALLBACK_URL":           "https://client.example/cb",
		"COMMS_ENABLED":               "true",
		"SCIP_EVENT_SUBJECT":          "tenant.ops",
		"JOURNAL_ENABLED":             "true",
		"DATABASE_URL":                "postgres://test@localhost/test",
		"HTTP_PORT":                   "9090",
		"LOG_LEVEL":                   "debug",
	}
	for key, val := range overrides {
		t.Setenv(key, val)
	}

	cfg := mustLoad(t)
	if cfg.GatewayURL != "http://gateway:8080/scl" {
		t.Errorf("config:config_test - GatewayURL = %q", cfg.GatewayURL)
	}
	if cfg.HTTPTimeout != 5*time.Second || cfg.DefaultInvokeTimeout != 2*time.Minute {
		t.Errorf("config:config_test - timeouts = %v, %v", cfg.HTTPTimeout, cfg.DefaultInvokeTimeout)
	}
	if !cfg.COMMSEnabled || cfg.EventSubject != "tenant.ops" {
		t.Errorf("config:config_test - COMMS = %v %q", cfg.COMMSEnabled, cfg.EventSubject)
	}
	if !cfg.JournalEnabled || cfg.DatabaseURL != "postgres://test@localhost/test" {
		t.Errorf("config:config_test - journal = %v %q", cfg.JournalEnabled, cfg.DatabaseURL)
	}
	if cfg.HTTPPort != 9090 || cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("config:config_test - HTTPPort = %d, level = %v", cfg.HTTPPort, cfg.SlogLevel())
	}
	if cfg.EffectiveCallbackURL() != "https://client.example/cb" {
		t.Errorf("config:config_test - EffectiveCallbackURL = %q", cfg.EffectiveCallbackURL())
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - unexpected validation error: %v", err)
	}
}

func TestValidateForServe(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "unsupported protocol", mutate: func(c *Config) { c.ProtocolVersion = "1.0.0" }, wantErr: "SCIP_PROTOCOL_VERSION"},
		{name: "zero http timeout", mutate: func(c *Config) { c.HTTPTimeout = 0 }, wantErr: "SCIP_HTTP_TIMEOUT"},
		{name: "negative invoke timeout", mutate: func(c *Config) { c.DefaultInvokeTimeout = -time.Second }, wantErr: "SCIP_DEFAULT_INVOKE_TIMEOUT"},
		{name: "bad gateway url", mutate: func(c *Config) { c.GatewayURL = "ftp://gw" }, wantErr: "SCIP_GATEWAY_URL"},
		{name: "port out of range", mutate: func(c *Config) { c.HTTPPort = 70000 }, wantErr: "HTTP_PORT"},
		{name: "relative callback path", mutate: func(c *Config) { c.CallbackPath = "callback" }, wantErr: "SCIP_CALLBACK_PATH"},
		{name: "reserved callback path", mutate: func(c *Config) { c.CallbackPath = "/health" }, wantErr: "reserved"},
		{name: "callback url without host", mutate: func(c *Config) { c.CallbackURL = "http://" }, wantErr: "SCIP_CALLBACK_URL"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.ShutdownTimeout = 0 }, wantErr: "SHUTDOWN_TIMEOUT"},
		{name: "comms without subject", mutate: func(c *Config) { c.COMMSEnabled = true; c.CallbackSubject = "" }, wantErr: "COMMS_ENABLED"},
		{name: "journal without database", mutate: func(c *Config) { c.JournalEnabled = true; c.DatabaseURL = "" }, wantErr: "DATABASE_URL"},
		{name: "addr overrides port", mutate: func(c *Config) { c.HTTPAddr = "127.0.0.1:0"; c.HTTPPort = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := mustLoad(t)
			tt.mutate(cfg)
			err := cfg.ValidateForServe()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("config:config_test - unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("config:config_test - error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestListenAddrAndCallbackURL(t *testing.T) {
	cfg := &Config{HTTPPort: 8081, CallbackPath: "/callback"}
	if cfg.ListenAddr() != ":8081" {
		t.Errorf("config:config_test - ListenAddr = %q", cfg.ListenAddr())
	}
	if cfg.EffectiveCallbackURL() != "http://localhost:8081/callback" {
		t.Errorf("config:config_test - EffectiveCallbackURL = %q", cfg.EffectiveCallbackURL())
	}
	cfg.HTTPAddr = "0.0.0.0:9000"
	if cfg.ListenAddr() != "0.0.0.0:9000" {
		t.Errorf("config:config_test - ListenAddr = %q", cfg.ListenAddr())
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"loud":  slog.LevelInfo,
	}
	for level, want := range tests {
		cfg := &Config{LogLevel: level}
		if got := cfg.SlogLevel(); got != want {
			t.Errorf("config:config_test - SlogLevel(%q) = %v, want %v", level, got, want)
		}
	}
}
