package sitedb

import (
	"testing"
)

func TestMapperMapSites(t *testing.T) {
	db := Database{Sites: []SiteRecord{
		{Key: "ffzy", Name: "FF", API: "https://api.ffzyapi.com/api.php/provide/vod/"},
		{Key: "legacy", URL: "http://legacy.example.org/inc/api.php"},
		{API: " https://cj.lziapi.com/api.php/provide/vod/ "},
		{Key: "spider", API: "csp_Demo"},
		{Key: "dup", Name: "Duplicate", API: "https://api.ffzyapi.com/api.php/provide/vod/"},
		{Key: "nohref"},
	}}

	sites, err := NewMapper().MapSites(db)
	if err != nil {
		t.Fatalf("MapSites() error = %v", err)
	}

	if len(sites) != 3 {
		t.Fatalf("MapSites() returned %d sites, want 3: %+v", len(sites), sites)
	}

	wantNames := []string{"FF", "legacy", "cj.lziapi.com"}
	for i, want := range wantNames {
		if sites[i].Name != want {
			t.Errorf("sites[%d].Name = %q, want %q", i, sites[i].Name, want)
		}
	}
	if sites[2].APIEndpoint != "https://cj.lziapi.com/api.php/provide/vod/" {
		t.Errorf("endpoint not trimmed: %q", sites[2].APIEndpoint)
	}
}

func TestMapperMapSitesEmpty(t *testing.T) {
	sites, err := NewMapper().MapSites(Database{})

	if err == nil {
		t.Error("MapSites() with empty database should return error")
	}
	if sites != nil {
		t.Errorf("MapSites() with empty database should return nil sites, got %v", len(sites))
	}
}

func TestMapperMapSitesNoUsableEndpoint(t *testing.T) {
	db := Database{Sites: []SiteRecord{
		{Key: "spider", API: "csp_Demo"},
		{Key: "relative", API: "/api.php"},
	}}

	if _, err := NewMapper().MapSites(db); err == nil {
		t.Error("MapSites() should return error when no site has an endpoint")
	}
}

func TestMapperMapSitesUniqueNames(t *testing.T) {
	db := Database{Sites: []SiteRecord{
		{Name: "FF", API: "https://api.ffzy.com/api.php/provide/vod/"},
		{Name: "FF", API: "https://api.ffzy2.com/api.php/provide/vod/"},
		{Name: "FF", API: "https://api.ffzy2.com/api.php/provide/vod/?ac=list"},
		{Name: "FF", API: "http://api.ffzy2.com/api.php/provide/vod/"},
	}}

	sites, err := NewMapper().MapSites(db)
	if err != nil {
		t.Fatalf("MapSites() error = %v", err)
	}

	want := []string{"FF", "FF (api.ffzy2.com)", "FF (api.ffzy2.com) #2", "FF (api.ffzy2.com) #3"}
	if len(sites) != len(want) {
		t.Fatalf("MapSites() returned %d sites, want %d", len(sites), len(want))
	}
	for i, w := range want {
		if sites[i].Name != w {
			t.Errorf("sites[%d].Name = %q, want %q", i, sites[i].Name, w)
		}
	}
}
