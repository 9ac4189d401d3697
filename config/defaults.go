package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Wiki defaults
	v.SetDefault("wiki.api_url", "https://www.wikidata.org/w/api.php")
	v.SetDefault("wiki.start_marker", "{{Wikidata list")
	v.SetDefault("wiki.end_marker", "{{Wikidata list end}}")
	v.SetDefault("wiki.edit_delay_ms", 5000) // polite write pacing
	v.SetDefault("wiki.timeout_seconds", 60)
	v.SetDefault("wiki.namespace_blocks", []int64{2, 3}) // user and user-talk pages

	// SPARQL defaults
	v.SetDefault("sparql.endpoint", "https://query.wikidata.org/sparql")
	v.SetDefault("sparql.max_concurrent", 5)
	v.SetDefault("sparql.timeout_seconds", 120)

	// Entity resolution defaults
	v.SetDefault("entity.api_url", "https://www.wikidata.org/w/api.php")
	v.SetDefault("entity.max_concurrent", 10)
	v.SetDefault("entity.cache_capacity", 10000)
	v.SetDefault("entity.timeout_seconds", 60)

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff", "exponential")
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 60000)

	// Render defaults
	v.SetDefault("render.default_language", "en")
	v.SetDefault("render.language_fallback", []string{"en", "de", "fr", "es"})
	v.SetDefault("render.prefer_preferred", true)
	v.SetDefault("render.default_thumbnail_size", 128)
	v.SetDefault("render.location_templates", map[string]string{
		"default": "{{Coord|$LAT$|$LON$|display=inline}}",
	})

	// Engine defaults
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.interval_seconds", 3600)

	// Status server disabled unless an address is configured
	v.SetDefault("server.listen_addr", "")
}
