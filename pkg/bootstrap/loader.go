package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/alonegg/scip-client/pkg/semver"
)

const logPrefix = "bootstrap:loader"

// LoadBootstrapConfig loads the gateway directory from the first readable, valid file.
// Explicit paths are tried first, then config/gateways.json and gateways.json.
// With no usable file the directory is empty.
func LoadBootstrapConfig(paths ...string) *BootstrapConfig {
	all := make([]string, 0, len(paths)+2)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	all = append(all, "config/gateways.json", "gateways.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var cfg BootstrapConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse gateway directory %s: %v", logPrefix, p, err))
			continue
		}
		if err := ValidateBootstrapConfig(&cfg); err != nil {
			slog.Warn(fmt.Sprintf("%s - Ignoring gateway directory %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded %d gateway(s) from %s", logPrefix, len(cfg.Gateways), p))
		return &cfg
	}

	slog.Debug(fmt.Sprintf("%s - No gateway directory found, using an empty one", logPrefix))
	return GetDefaultBootstrapConfig()
}

// GetDefaultBootstrapConfig returns an empty directory.
func GetDefaultBootstrapConfig() *BootstrapConfig {
	return &BootstrapConfig{
		Name:     "scip-client-gateways",
		Version:  "1.0.0",
		Gateways: map[string]GatewayEntry{},
		Aliases:  map[string]string{},
	}
}

// ValidateBootstrapConfig checks gateway URLs, declared protocol versions, aliases and
// the default entry.
func ValidateBootstrapConfig(cfg *BootstrapConfig) error {
	for name, g := range cfg.Gateways {
		if name == "" || strings.Contains(name, "://") {
			return fmt.Errorf("invalid gateway name %q", name)
		}
		u, err := url.Parse(g.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("gateway %s: url %q must be an absolute http(s) URL", name, g.URL)
		}
		if g.ProtocolVersion != "" && !semver.SatisfiesRange(g.ProtocolVersion, semver.SupportedRange) {
			return fmt.Errorf("gateway %s: protocol version %s is outside %s", name, g.ProtocolVersion, semver.SupportedRange)
		}
	}
	for alias, target := range cfg.Aliases {
		if _, ok := cfg.Gateways[target]; !ok {
			return fmt.Errorf("alias %s points to unknown gateway %s", alias, target)
		}
	}
	if cfg.Default != "" {
		if _, ok := cfg.Gateways[cfg.Default]; !ok {
			if _, ok := cfg.Aliases[cfg.Default]; !ok {
				return fmt.Errorf("default gateway %s is not defined", cfg.Default)
			}
		}
	}
	return nil
}

// CreateResolvedBootstrap builds a ResolvedBootstrap for fast lookups.
func CreateResolvedBootstrap(cfg *BootstrapConfig) *ResolvedBootstrap {
	gateways := make(map[string]*GatewayEntry, len(cfg.Gateways))
	for name, g := range cfg.Gateways {
		g := g
		gateways[name] = &g
	}

	aliases := make(map[string]string, len(cfg.Aliases))
	for alias, target := range cfg.Aliases {
		aliases[alias] = target
	}

	return &ResolvedBootstrap{
		name:     cfg.Name,
		version:  cfg.Version,
		gateways: gateways,
		aliases:  aliases,
		def:      cfg.Default,
	}
}

// Resolve turns a gateway reference into an endpoint URL. An http(s) URL is returned
// as is; a name or alias is looked up; an empty reference falls back to fallback and
// then to the directory default.
func (r *ResolvedBootstrap) Resolve(ref, fallback string) (string, error) {
	if ref == "" {
		ref = fallback
	}
	if ref == "" {
		ref = r.def
	}
	if ref == "" {
		return "", fmt.Errorf("%s - no gateway given and no default gateway configured", logPrefix)
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	if g := r.Get(ref); g != nil {
		return g.URL, nil
	}
	return "", fmt.Errorf("%s - unknown gateway %q", logPrefix, ref)
}

// Names returns gateway names in sorted order.
func (r *ResolvedBootstrap) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
