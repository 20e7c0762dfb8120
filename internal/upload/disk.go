// SPDX-License-Identifier: MIT

package upload

import (
	"sync"
	"time"

	"github.com/streamloft/vodhub/internal/fsutil"
)

// diskGauge caches free-space probes so hot chunk ingest does not statfs on
// every request. The original upload path used the same 1s cache window.
type diskGauge struct {
	mu      sync.Mutex
	path    string
	ttl     time.Duration
	free    int64
	fetched time.Time

	// probe is swappable for tests.
	probe func(string) (int64, error)
}

func newDiskGauge(path string) *diskGauge {
	return &diskGauge{
		path:  path,
		ttl:   time.Second,
		probe: fsutil.FreeSpace,
	}
}

// Free returns the cached free-byte count, refreshing it when stale.
func (g *diskGauge) Free() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if time.Since(g.fetched) < g.ttl {
		return g.free, nil
	}
	free, err := g.probe(g.path)
	if err != nil {
		return 0, err
	}
	g.free = free
	g.fetched = time.Now()
	return free, nil
}

// Invalidate forces the next Free call to re-probe. Used by init, which
// wants an up-to-date reading before admitting a multi-gigabyte upload.
func (g *diskGauge) Invalidate() {
	g.mu.Lock()
	g.fetched = time.Time{}
	g.mu.Unlock()
}
