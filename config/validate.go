package config

import "github.com/teranos/listsync/errors"

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Wiki.APIURL == "" {
		return errors.New("wiki.api_url cannot be empty")
	}
	if c.Wiki.StartMarker == "" || c.Wiki.EndMarker == "" {
		return errors.New("wiki.start_marker and wiki.end_marker must both be set")
	}
	if c.Wiki.StartMarker == c.Wiki.EndMarker {
		return errors.New("wiki.start_marker and wiki.end_marker must differ")
	}
	if c.Wiki.EditDelayMs < 0 {
		return errors.Newf("wiki.edit_delay_ms must be >= 0, got %d", c.Wiki.EditDelayMs)
	}

	if c.Sparql.Endpoint == "" {
		return errors.New("sparql.endpoint cannot be empty")
	}
	if c.Sparql.MaxConcurrent <= 0 {
		return errors.Newf("sparql.max_concurrent must be > 0, got %d", c.Sparql.MaxConcurrent)
	}
	if c.Sparql.TimeoutSeconds <= 0 {
		return errors.Newf("sparql.timeout_seconds must be > 0, got %d", c.Sparql.TimeoutSeconds)
	}

	if c.Entity.MaxConcurrent <= 0 {
		return errors.Newf("entity.max_concurrent must be > 0, got %d", c.Entity.MaxConcurrent)
	}
	if c.Entity.CacheCapacity <= 0 {
		return errors.Newf("entity.cache_capacity must be > 0, got %d", c.Entity.CacheCapacity)
	}

	if c.Retry.MaxAttempts <= 0 {
		return errors.Newf("retry.max_attempts must be > 0, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Backoff != "fixed" && c.Retry.Backoff != "exponential" {
		return errors.Newf("retry.backoff must be \"fixed\" or \"exponential\", got %q", c.Retry.Backoff)
	}

	if c.Render.DefaultLanguage == "" {
		return errors.New("render.default_language cannot be empty")
	}
	if _, ok := c.Render.LocationTemplates["default"]; !ok {
		return errors.New("render.location_templates must contain a \"default\" entry")
	}
	for name := range c.Render.LocationRegions {
		if _, ok := c.Render.LocationTemplates[name]; !ok {
			return errors.Newf("render.location_regions has region %q with no matching template", name)
		}
	}

	if c.Engine.Workers <= 0 {
		return errors.Newf("engine.workers must be > 0, got %d", c.Engine.Workers)
	}
	if c.Engine.IntervalSeconds <= 0 {
		return errors.Newf("engine.interval_seconds must be > 0, got %d", c.Engine.IntervalSeconds)
	}

	return nil
}
