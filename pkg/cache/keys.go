package cache

import "fmt"

// Namespaced key builders. Every key produced here is prefixed with the
// configured namespace so two namespaces (spec.md's "one config file =
// one namespace") can never collide in a shared Redis instance
// (Design Notes §9, Open Questions: "this specification requires the
// namespace prefix to be included in all cache keys").

// ClaimKey returns the claim record key for an ingester.
func (c *Config) ClaimKey(ingester string) string {
	return fmt.Sprintf("%s:claims:%s", c.Namespace, ingester)
}

// RegistryKey returns the registry record key for an ingester.
func (c *Config) RegistryKey(ingester string) string {
	return fmt.Sprintf("%s:ingesters:%s", c.Namespace, ingester)
}

// LatestKey returns the latest-value cache key for an ingester.
func (c *Config) LatestKey(ingester string) string {
	return fmt.Sprintf("%s:latest:%s", c.Namespace, ingester)
}

// LockKey returns the key used for the startup registry reconciliation
// lock.
func (c *Config) LockKey(name string) string {
	return fmt.Sprintf("%s:locks:%s", c.Namespace, name)
}

// CounterKey returns a counter key for an ingester and counter kind
// (e.g. "retry", "success").
func (c *Config) CounterKey(ingester, kind string) string {
	return fmt.Sprintf("%s:counters:%s:%s", c.Namespace, ingester, kind)
}

// Channel returns the pub/sub channel name for an ingester.
func (c *Config) Channel(ingester string) string {
	return fmt.Sprintf("%s:%s", c.Namespace, ingester)
}

// GeoKey returns the cache key for a host's cached geolocation
// (pkg/loader/monitor's GeoResolver).
func (c *Config) GeoKey(host string) string {
	return fmt.Sprintf("%s:geo:%s", c.Namespace, host)
}
