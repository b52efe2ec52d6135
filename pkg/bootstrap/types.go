// Package bootstrap loads the gateway directory: named SCIP gateways the client can
// address without spelling out their endpoint URL.
package bootstrap

// GatewayEntry is one gateway in the directory.
type GatewayEntry struct {
	URL string `json:"url"`
	// ProtocolVersion is the SCIP version the gateway speaks; empty means unknown.
	ProtocolVersion string `json:"protocolVersion,omitempty"`
	Description     string `json:"description,omitempty"`
	// Blockchain is informational (e.g. "ethereum", "fabric").
	Blockchain string `json:"blockchain,omitempty"`
}

// BootstrapConfig is the root of a gateway directory file.
type BootstrapConfig struct {
	Name     string                  `json:"name"`
	Version  string                  `json:"version"`
	Gateways map[string]GatewayEntry `json:"gateways"`
	// Aliases maps a short name to a key in Gateways.
	Aliases map[string]string `json:"aliases,omitempty"`
	// Default names the gateway used when no endpoint is given.
	Default string `json:"default,omitempty"`
}

// ResolvedBootstrap is a read-only view of a BootstrapConfig for lookups.
type ResolvedBootstrap struct {
	name     string
	version  string
	gateways map[string]*GatewayEntry
	aliases  map[string]string
	def      string
}

// Name returns the directory name.
func (r *ResolvedBootstrap) Name() string { return r.name }

// Version returns the directory version.
func (r *ResolvedBootstrap) Version() string { return r.version }

// Get returns the gateway for a name or alias, or nil if unknown.
func (r *ResolvedBootstrap) Get(ref string) *GatewayEntry {
	if g, ok := r.gateways[ref]; ok {
		return g
	}
	if target, ok := r.aliases[ref]; ok {
		return r.gateways[target]
	}
	return nil
}
