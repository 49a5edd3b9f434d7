package sandbox

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pool caches compiled Modules by guard ID so a route reload doesn't
// force every Wasm module to recompile, while still freeing the
// compiled artifact (and its Engine) for a guard nobody has invoked
// recently. Uses sync.Map for lock-free reads on the hot lookup path,
// with an idle sweep instead of a TTL-expiry check since a compiled
// module has no external source of truth to refresh from.
type Pool struct {
	store    sync.Map // map[string]*poolEntry
	idleTTL  time.Duration
	logger   *zap.Logger
	stopOnce sync.Once
	stop     chan struct{}
}

type poolEntry struct {
	module   *Module
	lastUsed atomic.Int64 // unix nanos
}

// NewPool builds a pool whose reaper, once started with StartReaper,
// evicts entries idle for longer than idleTTL.
func NewPool(idleTTL time.Duration, logger *zap.Logger) *Pool {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Pool{idleTTL: idleTTL, logger: logger, stop: make(chan struct{})}
}

// GetOrLoad returns the cached Module for id, loading and compiling it
// via load if absent. Concurrent GetOrLoad calls for the same id may
// compile the module more than once; the loser's result is discarded.
// Compilation is expensive but idempotent, so this trades a rare
// redundant compile for never holding a lock across disk I/O.
func (p *Pool) GetOrLoad(id string, load func() (*Module, error)) (*Module, error) {
	if v, ok := p.store.Load(id); ok {
		entry := v.(*poolEntry)
		entry.lastUsed.Store(time.Now().UnixNano())
		return entry.module, nil
	}

	m, err := load()
	if err != nil {
		return nil, err
	}
	entry := &poolEntry{module: m}
	entry.lastUsed.Store(time.Now().UnixNano())
	actual, loaded := p.store.LoadOrStore(id, entry)
	if loaded {
		return actual.(*poolEntry).module, nil
	}
	return m, nil
}

// Evict drops id from the pool immediately, used when a route reload
// removes or replaces a guard descriptor.
func (p *Pool) Evict(id string) {
	p.store.Delete(id)
}

// StartReaper runs a background sweep every interval, evicting modules
// idle longer than idleTTL. Call Stop to end the goroutine.
func (p *Pool) StartReaper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.sweep()
			case <-p.stop:
				return
			}
		}
	}()
}

func (p *Pool) sweep() {
	cutoff := time.Now().Add(-p.idleTTL).UnixNano()
	p.store.Range(func(key, value any) bool {
		entry := value.(*poolEntry)
		if entry.lastUsed.Load() < cutoff {
			p.store.Delete(key)
			p.logger.Debug("evicted idle wasm guard module", zap.String("guard_id", key.(string)))
		}
		return true
	})
}

// Stop ends the reaper goroutine, if one was started.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}
