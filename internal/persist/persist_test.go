package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanemc/observability-kit/internal/config"
	"github.com/lanemc/observability-kit/internal/domain"
	"github.com/lanemc/observability-kit/internal/store"
)

func testConfig(dir string) config.Config {
	return config.Config{
		MaxTraces:       100,
		MaxErrors:       100,
		MaxMetricPoints: 100,
		PersistencePath: dir,
		PersistInterval: time.Minute,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	src := store.New(cfg, nil)
	src.RecordRequest(domain.RequestRecord{
		Timestamp: time.Now(), Method: "GET", Path: "/api", StatusCode: 200, DurationMS: 12,
	})
	src.RecordError(domain.ErrorRecord{ID: "e1", Name: "Error", Message: "boom", Timestamp: time.Now()})

	if err := New(src, cfg, nil).Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	dst := store.New(cfg, nil)
	New(dst, cfg, nil).Load()

	if got := dst.Requests(0); len(got) != 1 || got[0].Path != "/api" {
		t.Fatalf("requests not restored: %+v", got)
	}
	if got := dst.Errors(0); len(got) != 1 || got[0].ID != "e1" {
		t.Fatalf("errors not restored: %+v", got)
	}
}

func TestLoadMissingFileIsFreshStart(t *testing.T) {
	cfg := testConfig(t.TempDir())
	st := store.New(cfg, nil)
	New(st, cfg, nil).Load()
	if got := st.Requests(0); len(got) != 0 {
		t.Fatalf("expected empty store, got %d requests", len(got))
	}
}

func TestLoadCorruptFileIsEmptyState(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	if err := os.WriteFile(filepath.Join(dir, snapshotFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	st := store.New(cfg, nil)
	New(st, cfg, nil).Load()
	if got := st.Requests(0); len(got) != 0 {
		t.Fatalf("corrupt snapshot must load as empty, got %d requests", len(got))
	}
}

func TestSaveOverwritesWholesale(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	st := store.New(cfg, nil)
	p := New(st, cfg, nil)

	st.RecordError(domain.ErrorRecord{ID: "first", Timestamp: time.Now()})
	if err := p.Save(); err != nil {
		t.Fatal(err)
	}
	st.Clear()
	st.RecordError(domain.ErrorRecord{ID: "second", Timestamp: time.Now()})
	if err := p.Save(); err != nil {
		t.Fatal(err)
	}

	fresh := store.New(cfg, nil)
	New(fresh, cfg, nil).Load()
	got := fresh.Errors(0)
	if len(got) != 1 || got[0].ID != "second" {
		t.Fatalf("snapshot must be overwritten wholesale, got %+v", got)
	}
}
