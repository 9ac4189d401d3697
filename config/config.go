// Package config holds the listsync configuration, loaded through Viper
// from layered TOML files and LISTSYNC_* environment variables.
package config

// Config represents the full listsync configuration
type Config struct {
	Wiki   WikiConfig   `mapstructure:"wiki"`
	Sparql SparqlConfig `mapstructure:"sparql"`
	Entity EntityConfig `mapstructure:"entity"`
	Retry  RetryConfig  `mapstructure:"retry"`
	Render RenderConfig `mapstructure:"render"`
	Engine EngineConfig `mapstructure:"engine"`
	Store  StoreConfig  `mapstructure:"store"`
	Server ServerConfig `mapstructure:"server"`
}

// WikiConfig configures the write-target wiki
type WikiConfig struct {
	APIURL          string  `mapstructure:"api_url"`
	OAuthToken      string  `mapstructure:"oauth_token"`
	StartMarker     string  `mapstructure:"start_marker"`
	EndMarker       string  `mapstructure:"end_marker"`
	EditDelayMs     int     `mapstructure:"edit_delay_ms"`     // minimum gap between successive edits, process-wide
	NamespaceBlocks []int64 `mapstructure:"namespace_blocks"`  // namespace ids we must never edit
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
}

// SparqlConfig configures the query service
type SparqlConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	MaxConcurrent  int    `mapstructure:"max_concurrent"` // simultaneous in-flight queries, process-wide
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EntityConfig configures entity resolution and its cache
type EntityConfig struct {
	APIURL         string `mapstructure:"api_url"`
	MaxConcurrent  int    `mapstructure:"max_concurrent"` // simultaneous entity fetches, independent of the query cap
	CacheCapacity  int    `mapstructure:"cache_capacity"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RetryConfig is the shared retry policy for queries, entity fetches and edits
type RetryConfig struct {
	MaxAttempts      int    `mapstructure:"max_attempts"`
	Backoff          string `mapstructure:"backoff"` // "fixed" or "exponential"
	InitialBackoffMs int    `mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int    `mapstructure:"max_backoff_ms"`
}

// Region is a geographic bounding box used to pick a location template
type Region struct {
	MinLat float64 `mapstructure:"min_lat"`
	MaxLat float64 `mapstructure:"max_lat"`
	MinLon float64 `mapstructure:"min_lon"`
	MaxLon float64 `mapstructure:"max_lon"`
}

// Contains reports whether the coordinate falls inside the region.
func (r Region) Contains(lat, lon float64) bool {
	return lat >= r.MinLat && lat <= r.MaxLat && lon >= r.MinLon && lon <= r.MaxLon
}

// RenderConfig configures the table renderer
type RenderConfig struct {
	DefaultLanguage      string            `mapstructure:"default_language"`
	LanguageFallback     []string          `mapstructure:"language_fallback"`
	PreferPreferred      bool              `mapstructure:"prefer_preferred"`
	DefaultThumbnailSize int               `mapstructure:"default_thumbnail_size"`
	LocationTemplates    map[string]string `mapstructure:"location_templates"` // region name -> template, must include "default"
	LocationRegions      map[string]Region `mapstructure:"location_regions"`
	ShadowImages         []string          `mapstructure:"shadow_images"` // files rendered as absent
}

// EngineConfig configures the orchestrator
type EngineConfig struct {
	Workers         int      `mapstructure:"workers"`
	IntervalSeconds int      `mapstructure:"interval_seconds"` // daemon cycle interval
	Pages           []string `mapstructure:"pages"`
	DryRun          bool     `mapstructure:"dry_run"` // render and diff but never edit
}

// StoreConfig configures the page-status bookkeeping database
type StoreConfig struct {
	Path string `mapstructure:"path"` // empty = bookkeeping disabled
}

// ServerConfig configures the optional daemon status endpoint
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"` // empty = status server disabled
}

// CanEditNamespace reports whether pages in the given namespace may be
// edited. Negative ids (virtual namespaces) are never editable.
func (c *WikiConfig) CanEditNamespace(nsid int64) bool {
	if nsid < 0 {
		return false
	}
	for _, blocked := range c.NamespaceBlocks {
		if blocked == nsid {
			return false
		}
	}
	return true
}
