package redis

import "testing"

func TestSiteKey(t *testing.T) {
	if got := SiteKey("ffzy"); got != "vodrules:site:ffzy" {
		t.Errorf("SiteKey() = %q", got)
	}
	if got := AllSitesKey(); got != "vodrules:sites:all" {
		t.Errorf("AllSitesKey() = %q", got)
	}
}
