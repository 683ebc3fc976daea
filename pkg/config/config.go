// Package config holds the recognized engine configuration options.
package config

import "github.com/linux/projects/logstore/internal/engine"

// Config is the full set of options recognized by the storage engine.
type Config struct {
	WALPath       string
	PageSize      int
	CacheCapacity int

	ArchiveBucket    string
	ArchiveEndpoint  string
	ArchiveRegion    string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchivePrefix    string
}

// Default returns a Config with the spec's default page size and cache
// capacity, and archiving disabled.
func Default(walPath string) Config {
	return Config{
		WALPath:       walPath,
		PageSize:      engine.DefaultPageSize,
		CacheCapacity: engine.DefaultCacheCapacity,
	}
}

// EngineConfig translates this Config into an engine.Config.
func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		WALPath:       c.WALPath,
		PageSize:      c.PageSize,
		CacheCapacity: c.CacheCapacity,
		Archive: engine.ArchiveConfig{
			Bucket:    c.ArchiveBucket,
			Endpoint:  c.ArchiveEndpoint,
			Region:    c.ArchiveRegion,
			AccessKey: c.ArchiveAccessKey,
			SecretKey: c.ArchiveSecretKey,
			Prefix:    c.ArchivePrefix,
		},
	}
}
