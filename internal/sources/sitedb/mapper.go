package sitedb

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/MrSnakeDoc/vodrules/internal/domain"
)

// Mapper converts site database records to domain.SiteDescriptor values
type Mapper struct{}

// NewMapper creates a new mapper instance
func NewMapper() *Mapper {
	return &Mapper{}
}

// MapSites keeps records with an absolute http(s) API endpoint. Records
// pointing at the same endpoint collapse into the first one. Site names are
// unique in the result since reports are keyed by name.
func (m *Mapper) MapSites(db Database) ([]domain.SiteDescriptor, error) {
	var sites []domain.SiteDescriptor
	seen := make(map[string]bool, len(db.Sites))
	names := make(map[string]bool, len(db.Sites))

	for _, rec := range db.Sites {
		endpoint := strings.TrimSpace(rec.API)
		if endpoint == "" {
			endpoint = strings.TrimSpace(rec.URL)
		}

		// Spider class names ("csp_Xxx") and relative paths are not endpoints
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
			continue
		}

		if seen[endpoint] {
			continue
		}
		seen[endpoint] = true

		name := uniqueName(names, siteName(rec, u), u)
		names[name] = true

		sites = append(sites, domain.SiteDescriptor{
			Name:        name,
			APIEndpoint: endpoint,
		})
	}

	if len(sites) == 0 {
		return nil, fmt.Errorf("no valid sites found in site database")
	}

	return sites, nil
}

// siteName falls back from name to key to the API hostname.
func siteName(rec SiteRecord, u *url.URL) string {
	if n := strings.TrimSpace(rec.Name); n != "" {
		return n
	}
	if k := strings.TrimSpace(rec.Key); k != "" {
		return k
	}
	return u.Hostname()
}

// uniqueName disambiguates a name already taken by another endpoint, first
// with the API host, then with a counter.
// Example: "FF" -> "FF (api.ffzy2.com)" -> "FF (api.ffzy2.com) #2"
func uniqueName(taken map[string]bool, name string, u *url.URL) string {
	if !taken[name] {
		return name
	}
	withHost := fmt.Sprintf("%s (%s)", name, u.Hostname())
	if !taken[withHost] {
		return withHost
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s #%d", withHost, i)
		if !taken[candidate] {
			return candidate
		}
	}
}
