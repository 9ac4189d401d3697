package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestDefaultsProduceValidConfig(t *testing.T) {
	cfg := defaultConfig(t)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Sparql.MaxConcurrent)
	assert.Equal(t, 10000, cfg.Entity.CacheCapacity)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "exponential", cfg.Retry.Backoff)
	assert.Equal(t, "en", cfg.Render.DefaultLanguage)
	assert.Contains(t, cfg.Render.LocationTemplates, "default")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty api url", func(c *Config) { c.Wiki.APIURL = "" }},
		{"missing markers", func(c *Config) { c.Wiki.StartMarker = "" }},
		{"identical markers", func(c *Config) { c.Wiki.EndMarker = c.Wiki.StartMarker }},
		{"zero query cap", func(c *Config) { c.Sparql.MaxConcurrent = 0 }},
		{"zero cache capacity", func(c *Config) { c.Entity.CacheCapacity = 0 }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"unknown backoff", func(c *Config) { c.Retry.Backoff = "jittered" }},
		{"no default location template", func(c *Config) { delete(c.Render.LocationTemplates, "default") }},
		{"region without template", func(c *Config) {
			c.Render.LocationRegions = map[string]Region{"alps": {MinLat: 44, MaxLat: 48, MinLon: 5, MaxLon: 16}}
		}},
		{"zero workers", func(c *Config) { c.Engine.Workers = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listsync.toml")
	content := `
[wiki]
api_url = "https://de.wikipedia.org/w/api.php"
edit_delay_ms = 250

[sparql]
max_concurrent = 2

[engine]
workers = 8
pages = ["Liste der Seen", "Liste der Berge"]

[render.location_regions.alps]
min_lat = 44.0
max_lat = 48.0
min_lon = 5.0
max_lon = 16.0

[render.location_templates]
default = "{{Coord|$LAT$|$LON$}}"
alps = "{{AlpsCoord|$LAT$|$LON$}}"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://de.wikipedia.org/w/api.php", cfg.Wiki.APIURL)
	assert.Equal(t, 250, cfg.Wiki.EditDelayMs)
	assert.Equal(t, 2, cfg.Sparql.MaxConcurrent)
	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, []string{"Liste der Seen", "Liste der Berge"}, cfg.Engine.Pages)

	region, ok := cfg.Render.LocationRegions["alps"]
	require.True(t, ok)
	assert.True(t, region.Contains(46.5, 10.0))
	assert.False(t, region.Contains(52.5, 13.4))

	// Defaults still apply for everything the file does not mention
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestCanEditNamespace(t *testing.T) {
	wiki := WikiConfig{NamespaceBlocks: []int64{2, 3}}
	assert.True(t, wiki.CanEditNamespace(0))
	assert.True(t, wiki.CanEditNamespace(4))
	assert.False(t, wiki.CanEditNamespace(2))
	assert.False(t, wiki.CanEditNamespace(-1))
}
