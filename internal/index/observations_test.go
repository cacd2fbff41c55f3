package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/MrSnakeDoc/vodrules/internal/domain"
)

func TestNewObservationIndex(t *testing.T) {
	index := NewObservationIndex()
	if index == nil {
		t.Fatal("NewObservationIndex() returned nil")
	}
	snap := index.Snapshot()
	if snap.Hostnames.Len() != 0 || snap.Keywords.Len() != 0 {
		t.Errorf("NewObservationIndex() should start empty, got %v", snap.Hostnames.Sorted())
	}
	if len(index.Reports()) != 0 {
		t.Errorf("NewObservationIndex() should start without reports")
	}
}

func TestMergeUnions(t *testing.T) {
	index := NewObservationIndex()

	index.Merge(domain.Observations{
		Hostnames: domain.NewSet("a.example.com", "b.example.com"),
		Keywords:  domain.NewSet("alpha"),
	})
	index.Merge(domain.Observations{
		Hostnames: domain.NewSet("b.example.com", "c.example.com"),
		Keywords:  domain.NewSet("beta"),
	})

	snap := index.Snapshot()
	if snap.Hostnames.Len() != 3 {
		t.Errorf("Snapshot() hosts = %v, want 3", snap.Hostnames.Sorted())
	}
	if !snap.Keywords.Equal(domain.NewSet("alpha", "beta")) {
		t.Errorf("Snapshot() keywords = %v", snap.Keywords.Sorted())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	index := NewObservationIndex()
	index.Merge(domain.Observations{Hostnames: domain.NewSet("a.example.com"), Keywords: domain.NewSet()})

	snap := index.Snapshot()
	snap.Hostnames.Add("mutated.example.com")

	if got := index.Snapshot().Hostnames.Len(); got != 1 {
		t.Errorf("mutating a snapshot changed the index: %v hosts", got)
	}
}

func TestReports(t *testing.T) {
	index := NewObservationIndex()

	index.AddReport(domain.SiteReport{Site: "zeta", Attempts: 3})
	index.AddReport(domain.SiteReport{Site: "alpha", Attempts: 3})
	index.AddReport(domain.SiteReport{Site: "zeta", Attempts: 4})

	reports := index.Reports()
	if len(reports) != 2 {
		t.Fatalf("Reports() returned %v reports, want 2", len(reports))
	}
	if reports[0].Site != "alpha" || reports[1].Site != "zeta" {
		t.Errorf("Reports() not ordered by site: %+v", reports)
	}
	if reports[1].Attempts != 4 {
		t.Errorf("Reports() zeta = %+v, want the replaced report", reports[1])
	}
}

func TestConcurrentMerge(t *testing.T) {
	index := NewObservationIndex()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			host := fmt.Sprintf("h%d.example.com", i)
			index.Merge(domain.Observations{Hostnames: domain.NewSet(host), Keywords: domain.NewSet()})
			index.AddReport(domain.SiteReport{Site: host})
			_ = index.Snapshot()
		}(i)
	}
	wg.Wait()

	if got := index.Snapshot().Hostnames.Len(); got != 20 {
		t.Errorf("hosts = %v, want 20", got)
	}
	if len(index.Reports()) != 20 {
		t.Errorf("Reports() = %v, want 20", len(index.Reports()))
	}
}
