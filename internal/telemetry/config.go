package telemetry

// Config holds OpenTelemetry tracing and Pyroscope profiling settings.
type Config struct {
	// Enabled turns on span export.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ServiceName is reported to the trace and profile backends.
	ServiceName string `mapstructure:"service_name" yaml:"service_name,omitempty"`

	// ServiceVersion is filled in from the build version when empty.
	ServiceVersion string `mapstructure:"service_version" yaml:"service_version,omitempty"`

	// Endpoint is the OTLP gRPC collector (e.g., "localhost:4317").
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" validate:"omitempty,hostname_port"`

	// Insecure disables TLS to the collector.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the fraction of traces kept, 0.0 to 1.0.
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"min=0,max=1"`

	// Profiling configures continuous profiling.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// DefaultConfig returns the disabled defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		ServiceName: "mantafs",
		Endpoint:    "localhost:4317",
		Insecure:    true,
		SampleRate:  1.0,
		Profiling: ProfilingConfig{
			Endpoint:     "http://localhost:4040",
			ProfileTypes: []string{"cpu", "alloc_space", "inuse_space", "goroutines"},
		},
	}
}
