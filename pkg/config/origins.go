package config

import (
	"context"
	"fmt"

	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/origin"
	"github.com/inftyai/mantafs/pkg/origin/hub"
	"github.com/inftyai/mantafs/pkg/origin/s3"
)

// RetryConfig returns the origin retry policy.
func (c *OriginsConfig) RetryConfig() origin.RetryConfig {
	cfg := origin.DefaultRetryConfig()
	if c.MaxRetries != nil {
		cfg.MaxRetries = *c.MaxRetries
	}
	if c.RetryInitialInterval > 0 {
		cfg.InitialInterval = c.RetryInitialInterval
	}
	if c.RetryMaxInterval > 0 {
		cfg.MaxInterval = c.RetryMaxInterval
	}
	return cfg
}

// BuildOrigins creates an origin for every supported store type. The hubs
// always register since they work anonymously. The object stores register
// when their SDK configuration loads; a failure there is returned so a
// broken credential setup is noticed at startup.
func BuildOrigins(ctx context.Context, cfg OriginsConfig) (*origin.Registry, error) {
	reg := origin.NewRegistry()
	retry := cfg.RetryConfig()

	register := func(st catalog.StoreType, o origin.Origin) {
		if retry.MaxRetries > 0 {
			o = origin.WithRetry(string(st), o, retry)
		}
		reg.Register(st, o)
	}

	register(catalog.StoreTypeHF, hub.NewHuggingFace(cfg.HF))
	register(catalog.StoreTypeMS, hub.NewModelScope(cfg.MS))

	stores := []struct {
		st  catalog.StoreType
		cfg s3.Config
	}{
		{catalog.StoreTypeS3, cfg.S3},
		{catalog.StoreTypeOSS, cfg.OSS},
		{catalog.StoreTypeGCS, cfg.GCS},
	}
	for _, s := range stores {
		// OSS and GCS only speak S3 through an explicit endpoint.
		if s.st != catalog.StoreTypeS3 && s.cfg.Endpoint == "" {
			continue
		}
		o, err := s3.NewFromConfig(ctx, s.cfg)
		if err != nil {
			return nil, fmt.Errorf("create %s origin: %w", s.st, err)
		}
		register(s.st, o)
	}

	return reg, nil
}
