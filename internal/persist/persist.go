package persist

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lanemc/observability-kit/internal/config"
	"github.com/lanemc/observability-kit/internal/store"
)

const snapshotFile = "data.json"

// Persister snapshots the telemetry store to disk on an interval. Every
// failure is logged and swallowed; persistence never takes the host app
// down.
type Persister struct {
	store    *store.Store
	dir      string
	interval time.Duration
	log      *slog.Logger
}

// New constructs a Persister from the persistence settings.
func New(st *store.Store, cfg config.Config, logger *slog.Logger) *Persister {
	if logger != nil {
		logger = logger.With("component", "persistence")
	}
	return &Persister{
		store:    st,
		dir:      cfg.PersistencePath,
		interval: cfg.PersistInterval,
		log:      logger,
	}
}

// File reports the snapshot file path.
func (p *Persister) File() string {
	return filepath.Join(p.dir, snapshotFile)
}

// Load restores a previous snapshot into the store. A missing file means a
// fresh start; a corrupt file is logged and treated as empty state.
func (p *Persister) Load() {
	raw, err := os.ReadFile(p.File())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.warn("snapshot read failed", err)
		}
		return
	}
	var snap store.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		p.warn("snapshot corrupt, starting empty", err)
		return
	}
	p.store.Restore(snap)
	if p.log != nil {
		p.log.Info("snapshot restored", "file", p.File())
	}
}

// Save overwrites the snapshot file with the current store state.
func (p *Persister) Save() error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		p.warn("snapshot dir create failed", err)
		return err
	}
	raw, err := json.Marshal(p.store.Export())
	if err != nil {
		p.warn("snapshot marshal failed", err)
		return err
	}
	if err := os.WriteFile(p.File(), raw, 0o644); err != nil {
		p.warn("snapshot write failed", err)
		return err
	}
	return nil
}

// Run saves on the configured interval until the context is cancelled,
// then writes one final snapshot.
func (p *Persister) Run(ctx context.Context) {
	interval := p.interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.Save()
			return
		case <-ticker.C:
			_ = p.Save()
		}
	}
}

func (p *Persister) warn(msg string, err error) {
	if p.log != nil {
		p.log.Warn(msg, "error", err)
	}
}
