package peer

import "time"

// Config configures both halves of the peer cache protocol.
//
// When Enabled is false no server is started; Endpoints may still be set so
// this node reads from peers without serving.
type Config struct {
	// Enabled starts the peer server alongside the mount.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Listen is the server address.
	// Default: ":7070"
	Listen string `mapstructure:"listen" yaml:"listen" validate:"omitempty,hostname_port"`

	// Endpoints are base URLs of other nodes, e.g. http://10.0.0.2:7070.
	Endpoints []string `mapstructure:"endpoints" yaml:"endpoints" validate:"dive,url"`

	// Timeout bounds each peer probe and the wait for response headers.
	// Transfers themselves are bounded by the caller's context.
	// Default: 10s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// IdleTimeout is the keep-alive idle time on the server.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// Compress enables zstd responses for clients that accept them.
	// Default: true
	Compress *bool `mapstructure:"compress" yaml:"compress"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = ":7070"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.Compress == nil {
		on := true
		c.Compress = &on
	}
}

// CompressEnabled reports whether zstd responses are enabled.
func (c *Config) CompressEnabled() bool {
	return c.Compress == nil || *c.Compress
}
