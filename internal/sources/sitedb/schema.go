package sitedb

// Database is the top-level structure of the site database (db.json).
// Only the fields needed to request a site are decoded.
type Database struct {
	Sites []SiteRecord `json:"sites" yaml:"sites"`
}

// SiteRecord is one aggregator entry.
type SiteRecord struct {
	Key  string `json:"key,omitempty" yaml:"key,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	API  string `json:"api,omitempty" yaml:"api,omitempty"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"` // older databases use url instead of api
}
