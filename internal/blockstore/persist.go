package blockstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// persister serializes the full chain to path via temp-file + rename, so a
// reader never observes a partial write (spec.md §4.8). Writes are
// serialized among themselves (mu) and run off the append lock.
type persister struct {
	path string

	mu      sync.Mutex
	writing bool
	queued  []models.Block
}

func newPersister(path string) *persister {
	return &persister{path: path}
}

// writeAsync schedules snapshot for persistence. If a write is already in
// flight, the newer snapshot simply replaces the queued one — only the
// latest chain state is ever worth writing.
func (p *persister) writeAsync(snapshot []models.Block) {
	p.mu.Lock()
	p.queued = snapshot
	if p.writing {
		p.mu.Unlock()
		return
	}
	p.writing = true
	p.mu.Unlock()

	go p.drain()
}

func (p *persister) drain() {
	for {
		p.mu.Lock()
		snapshot := p.queued
		p.queued = nil
		p.mu.Unlock()

		_ = p.writeOnce(snapshot)

		p.mu.Lock()
		if p.queued == nil {
			p.writing = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

func (p *persister) writeOnce(snapshot []models.Block) error {
	wire := make([]models.Wire, len(snapshot))
	for i, b := range snapshot {
		wire[i] = b.ToWire()
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, ".blockstore-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, p.path)
}
