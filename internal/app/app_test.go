package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/vodrules/internal/config"
	"github.com/MrSnakeDoc/vodrules/internal/domain"
	"github.com/MrSnakeDoc/vodrules/internal/logger"
	"github.com/MrSnakeDoc/vodrules/internal/rulefile"
)

const listing = `{"code":1,"page":"1","list":[
	{"vod_id":1,"vod_play_url":"第01集$https://cdn15.yyv22.com/share/a1/index.m3u8#第02集$https://cdn16.yyv22.com/share/a2/index.m3u8"},
	{"vod_id":"2","vod_play_url":"HD$https://vip.lzcdn2.com:8443/20240101/x/index.m3u8"}
]}`

// newAggregators serves one healthy aggregator and one that always fails.
func newAggregators(t *testing.T, failing *atomic.Int32) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Get("/good/api.php/provide/vod", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listing))
	})
	r.Get("/bad/api.php/provide/vod", func(w http.ResponseWriter, r *http.Request) {
		failing.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	r.Get("/hang/api.php/provide/vod", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(dir, siteDB string) *config.Config {
	return &config.Config{
		LogLevel:       "error",
		SiteDB:         siteDB,
		OutputFile:     filepath.Join(dir, "MyVideo.yaml"),
		OutputFormat:   "yaml",
		MetricsFile:    filepath.Join(dir, "vodrules.prom"),
		Attempts:       3,
		AttemptDelay:   time.Millisecond,
		RequestTimeout: 2 * time.Second,
		RunTimeout:     10 * time.Second,
		Workers:        2,
		ListingQuery:   "ac=videolist",
		ListField:      "list",
		URLField:       "vod_play_url",
		MinHostLen:     3,
		PruneKeywords:  true,
		ExcludeKeyword: domain.DefaultExcludedKeywords,
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestRunContextEndToEnd(t *testing.T) {
	var failing atomic.Int32
	srv := newAggregators(t, &failing)
	dir := t.TempDir()

	siteDB := filepath.Join(dir, "db.json")
	writeFile(t, siteDB, fmt.Sprintf(`{
	"sites": [
		{"key": "good", "name": "Good", "api": "%[1]s/good/api.php/provide/vod"},
		// {"key": "old", "api": "%[1]s/old"},
		{"key": "bad", "name": "Bad", "api": "%[1]s/bad/api.php/provide/vod"},
		{"key": "csp_Spider", "api": "csp_Spider"}
	]
}`, srv.URL))

	cfg := testConfig(dir, siteDB)
	writeFile(t, cfg.OutputFile, "payload:\n  - DOMAIN-SUFFIX,old.example.com\n  - DOMAIN-SUFFIX,edge.yyv.net\n")

	if err := NewWithConfig(cfg, logger.NewNop()).RunContext(context.Background()); err != nil {
		t.Fatalf("RunContext() error = %v", err)
	}

	decoded, err := rulefile.NewStore(cfg.OutputFile, rulefile.FormatYAML).Load()
	if err != nil {
		t.Fatalf("failed to load written rule file: %v", err)
	}

	want := domain.RuleSet{
		Keywords: domain.NewSet("yyv", "lzcdn"),
		Suffixes: domain.NewSet("old.example.com"),
	}
	if !decoded.Rules.Equal(want) {
		t.Errorf("rules = keywords %v suffixes %v, want keywords %v suffixes %v",
			decoded.Rules.Keywords.Sorted(), decoded.Rules.Suffixes.Sorted(),
			want.Keywords.Sorted(), want.Suffixes.Sorted())
	}

	if got := failing.Load(); got != int32(cfg.Attempts) {
		t.Errorf("failing site queried %d times, want %d", got, cfg.Attempts)
	}

	metrics, err := os.ReadFile(cfg.MetricsFile)
	if err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}
	if !strings.Contains(string(metrics), `vodrules_sites_total{result="unproductive"} 1`) {
		t.Errorf("metrics textfile missing unproductive site:\n%s", metrics)
	}
}

func TestRunContextDeadlineKeepsFinishedSites(t *testing.T) {
	var failing atomic.Int32
	srv := newAggregators(t, &failing)
	dir := t.TempDir()

	siteDB := filepath.Join(dir, "db.json")
	writeFile(t, siteDB, fmt.Sprintf(`{"sites":[
		{"name":"Good","api":"%[1]s/good/api.php/provide/vod"},
		{"name":"Hang","api":"%[1]s/hang/api.php/provide/vod"}
	]}`, srv.URL))

	cfg := testConfig(dir, siteDB)
	cfg.RunTimeout = 500 * time.Millisecond
	cfg.RequestTimeout = 5 * time.Second
	writeFile(t, cfg.OutputFile, "payload:\n  - DOMAIN-SUFFIX,old.example.com\n")

	if err := NewWithConfig(cfg, logger.NewNop()).RunContext(context.Background()); err != nil {
		t.Fatalf("RunContext() error = %v, want a best-effort write", err)
	}

	decoded, err := rulefile.NewStore(cfg.OutputFile, rulefile.FormatYAML).Load()
	if err != nil {
		t.Fatalf("failed to load written rule file: %v", err)
	}

	want := domain.RuleSet{
		Keywords: domain.NewSet("yyv", "lzcdn"),
		Suffixes: domain.NewSet("old.example.com"),
	}
	if !decoded.Rules.Equal(want) {
		t.Errorf("rules = keywords %v suffixes %v, want keywords %v suffixes %v",
			decoded.Rules.Keywords.Sorted(), decoded.Rules.Suffixes.Sorted(),
			want.Keywords.Sorted(), want.Suffixes.Sorted())
	}

	metrics, err := os.ReadFile(cfg.MetricsFile)
	if err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}
	if !strings.Contains(string(metrics), `vodrules_sites_total{result="unfinished"} 1`) {
		t.Errorf("metrics textfile missing unfinished site:\n%s", metrics)
	}
}

func TestRunContextIsIdempotent(t *testing.T) {
	var failing atomic.Int32
	srv := newAggregators(t, &failing)
	dir := t.TempDir()

	siteDB := filepath.Join(dir, "sites.yaml")
	writeFile(t, siteDB, fmt.Sprintf("sites:\n  - name: Good\n    api: %s/good/api.php/provide/vod\n", srv.URL))

	cfg := testConfig(dir, siteDB)
	cfg.OutputFormat = "list"
	cfg.OutputFile = filepath.Join(dir, "rules.list")

	a := NewWithConfig(cfg, logger.NewNop())
	if err := a.RunContext(context.Background()); err != nil {
		t.Fatalf("first RunContext() error = %v", err)
	}
	first, err := os.ReadFile(cfg.OutputFile)
	if err != nil {
		t.Fatalf("rule file not written: %v", err)
	}

	if err := NewWithConfig(cfg, logger.NewNop()).RunContext(context.Background()); err != nil {
		t.Fatalf("second RunContext() error = %v", err)
	}
	second, err := os.ReadFile(cfg.OutputFile)
	if err != nil {
		t.Fatalf("rule file not written: %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("second run changed the rule file:\n%s\n---\n%s", first, second)
	}
	if !strings.Contains(string(first), "DOMAIN-KEYWORD,yyv\n") {
		t.Errorf("list output missing keyword rule:\n%s", first)
	}
}

func TestRunContextMissingSiteDB(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, filepath.Join(dir, "missing.json"))

	if err := NewWithConfig(cfg, logger.NewNop()).RunContext(context.Background()); err == nil {
		t.Fatal("RunContext() with a missing site database should fail")
	}
	if _, err := os.Stat(cfg.OutputFile); !os.IsNotExist(err) {
		t.Errorf("rule file should not be written, stat error = %v", err)
	}
}

func TestRunContextCanceledWritesNothing(t *testing.T) {
	var failing atomic.Int32
	srv := newAggregators(t, &failing)
	dir := t.TempDir()

	siteDB := filepath.Join(dir, "db.json")
	writeFile(t, siteDB, fmt.Sprintf(`{"sites":[{"name":"Good","api":"%s/good/api.php/provide/vod"}]}`, srv.URL))

	cfg := testConfig(dir, siteDB)
	original := "payload:\n  - DOMAIN-SUFFIX,old.example.com\n"
	writeFile(t, cfg.OutputFile, original)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewWithConfig(cfg, logger.NewNop()).RunContext(ctx); err == nil {
		t.Fatal("RunContext() with a canceled context should fail")
	}

	data, err := os.ReadFile(cfg.OutputFile)
	if err != nil {
		t.Fatalf("failed to read rule file: %v", err)
	}
	if string(data) != original {
		t.Errorf("canceled run modified the rule file:\n%s", data)
	}
	if _, err := os.Stat(cfg.MetricsFile); !os.IsNotExist(err) {
		t.Errorf("canceled run should not write metrics, stat error = %v", err)
	}
}

func TestRunContextInvalidFormat(t *testing.T) {
	dir := t.TempDir()
	siteDB := filepath.Join(dir, "db.json")
	writeFile(t, siteDB, `{"sites":[{"name":"x","api":"https://api.x.com/api.php"}]}`)

	cfg := testConfig(dir, siteDB)
	cfg.OutputFormat = "toml"

	if err := NewWithConfig(cfg, logger.NewNop()).RunContext(context.Background()); err == nil {
		t.Fatal("RunContext() with an unknown output format should fail")
	}
}
