// Package constants holds the fixed protocol and product values the bridge
// is built around: listener ports, the server identity string, and the
// various timeouts fixed by design rather than left configurable.
package constants

import "time"

const (
	// AppVersion is the bridge's own version, used to build the user-agent.
	AppVersion = "0.2.8"

	// UserAgent is sent on every outbound HTTP request to the remote server.
	UserAgent = "PocketRelayClient/v" + AppVersion

	// HostKey is the DNS name the game hard-codes for its redirector lookup.
	// Mutating the hosts file to point this at loopback is the GUI
	// collaborator's job; this module only needs to know the name for
	// documentation/logging purposes.
	HostKey = "gosredirector.ea.com"

	// RedirectorPort accepts the legacy handshake and answers the one
	// GetServerInstance request the game issues at startup.
	RedirectorPort = 42127
	// MainPort accepts the game's main-service connection and tunnels it to
	// the remote over an HTTP Upgrade.
	MainPort = 42128
	// TelemetryPort accepts the game's length-prefixed telemetry stream.
	TelemetryPort = 42129
	// QOSPort answers UDP NAT-discovery probes.
	QOSPort = 42130
	// HTTPPort transparently forwards the game's HTTP GETs to the remote.
	HTTPPort = 42131

	// ServerIdent is the identifier a compatible remote server must report.
	ServerIdent = "POCKET_RELAY_SERVER"

	// PublicIPTTL is how long a resolved public IPv4 address is cached.
	PublicIPTTL = 2 * time.Hour

	// RedirectorIdleTimeout bounds how long the redirector will wait for a
	// valid request before dropping an idle connection.
	RedirectorIdleTimeout = 60 * time.Second

	// LookupTimeout bounds the HTTP client used for server discovery.
	LookupTimeout = 15 * time.Second

	// TLM3Key is the repeating XOR key used to obfuscate TLM3 telemetry lines.
	TLM3Key = "The truth is back in style."

	// ConfigFileName is the default config file persisted next to the
	// executable.
	ConfigFileName = "pocket-relay-client.json"
)

// MinServerVersion is the lowest server version this bridge will connect to.
var MinServerVersion = Version{Major: 0, Minor: 5, Patch: 0}

// Version is a minimal semver triple, just enough to compare the constant
// above against whatever a remote server reports.
type Version struct {
	Major, Minor, Patch int
}
