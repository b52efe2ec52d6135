package bootstrap

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func sampleConfig() *BootstrapConfig {
	return &BootstrapConfig{
		Name:    "lab",
		Version: "1.0.0",
		Gateways: map[string]GatewayEntry{
			"eth-main": {URL: "http://eth-gw:8080/scl", ProtocolVersion: "2.0.0", Blockchain: "ethereum"},
			"fabric":   {URL: "https://fabric-gw/scl"},
		},
		Aliases: map[string]string{"eth": "eth-main"},
		Default: "eth",
	}
}

func TestGetDefaultBootstrapConfig(t *testing.T) {
	cfg := GetDefaultBootstrapConfig()
	if len(cfg.Gateways) != 0 || cfg.Default != "" {
		t.Errorf("bootstrap:loader_test - expected empty directory, got %+v", cfg)
	}
	if err := ValidateBootstrapConfig(cfg); err != nil {
		t.Errorf("bootstrap:loader_test - default directory invalid: %v", err)
	}
}

func TestValidateBootstrapConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *BootstrapConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*BootstrapConfig) {}},
		{name: "relative url", mutate: func(c *BootstrapConfig) { c.Gateways["bad"] = GatewayEntry{URL: "/scl"} }, wantErr: "absolute"},
		{name: "unsupported protocol", mutate: func(c *BootstrapConfig) {
			c.Gateways["old"] = GatewayEntry{URL: "http://old", ProtocolVersion: "1.4.0"}
		}, wantErr: "outside"},
		{name: "name looks like url", mutate: func(c *BootstrapConfig) { c.Gateways["http://x"] = GatewayEntry{URL: "http://x"} }, wantErr: "invalid gateway name"},
		{name: "dangling alias", mutate: func(c *BootstrapConfig) { c.Aliases["x"] = "missing" }, wantErr: "unknown gateway"},
		{name: "unknown default", mutate: func(c *BootstrapConfig) { c.Default = "missing" }, wantErr: "default gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sampleConfig()
			tt.mutate(cfg)
			err := ValidateBootstrapConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("bootstrap:loader_test - unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("bootstrap:loader_test - error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestResolvedBootstrap_Get(t *testing.T) {
	resolved := CreateResolvedBootstrap(sampleConfig())

	if g := resolved.Get("eth-main"); g == nil || g.Blockchain != "ethereum" {
		t.Errorf("bootstrap:loader_test - direct lookup = %+v", g)
	}
	if g := resolved.Get("eth"); g == nil || g.URL != "http://eth-gw:8080/scl" {
		t.Errorf("bootstrap:loader_test - alias lookup = %+v", g)
	}
	if g := resolved.Get("nonexistent"); g != nil {
		t.Errorf("bootstrap:loader_test - expected nil, got %+v", g)
	}
	if !reflect.DeepEqual(resolved.Names(), []string{"eth-main", "fabric"}) {
		t.Errorf("bootstrap:loader_test - names = %v", resolved.Names())
	}
}

func TestResolvedBootstrap_Resolve(t *testing.T) {
	resolved := CreateResolvedBootstrap(sampleConfig())

	tests := []struct {
		name     string
		ref      string
		fallback string
		want     string
		wantErr  bool
	}{
		{name: "url passes through", ref: "https://elsewhere/scl", want: "https://elsewhere/scl"},
		{name: "name", ref: "fabric", want: "https://fabric-gw/scl"},
		{name: "alias", ref: "eth", want: "http://eth-gw:8080/scl"},
		{name: "fallback", fallback: "http://from-env/scl", want: "http://from-env/scl"},
		{name: "directory default", want: "http://eth-gw:8080/scl"},
		{name: "unknown", ref: "solana", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolved.Resolve(tt.ref, tt.fallback)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("bootstrap:loader_test - expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("bootstrap:loader_test - unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("bootstrap:loader_test - Resolve = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := CreateResolvedBootstrap(GetDefaultBootstrapConfig()).Resolve("", ""); err == nil {
		t.Error("bootstrap:loader_test - expected error with no gateway and no default")
	}
}

func TestLoadBootstrapConfig_PathOrder(t *testing.T) {
	dir := t.TempDir()
	invalid := filepath.Join(dir, "invalid.json")
	os.WriteFile(invalid, []byte(`{"gateways":{"x":{"url":"not a url"}}}`), 0o644)
	broken := filepath.Join(dir, "broken.json")
	os.WriteFile(broken, []byte(`{`), 0o644)
	good := filepath.Join(dir, "gateways.json")
	os.WriteFile(good, []byte(`{"name":"lab","version":"2.0.0","gateways":{"eth":{"url":"http://eth-gw/scl"}},"default":"eth"}`), 0o644)

	cfg := LoadBootstrapConfig(filepath.Join(dir, "missing.json"), broken, invalid, good)
	if cfg.Name != "lab" || cfg.Default != "eth" {
		t.Errorf("bootstrap:loader_test - loaded %+v, want the first valid file", cfg)
	}

	cfg = LoadBootstrapConfig(filepath.Join(dir, "missing.json"))
	if len(cfg.Gateways) != 0 {
		t.Errorf("bootstrap:loader_test - expected empty fallback, got %+v", cfg)
	}
}
