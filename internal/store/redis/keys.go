package redis

const (
	// KeyPrefixSite is the prefix for per-site report keys
	KeyPrefixSite = "vodrules:site:"
	// KeyAllSites is the key for the set of all reported site names
	KeyAllSites = "vodrules:sites:all"
)

// SiteKey returns the Redis key for a site report by site name
func SiteKey(site string) string {
	return KeyPrefixSite + site
}

// AllSitesKey returns the key for the set of all site names
func AllSitesKey() string {
	return KeyAllSites
}
