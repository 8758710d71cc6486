package storage

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// idleEvictionInterval is how long a lazily-built Adapter sits unused in
// the Pool before its cached entry is evicted, forcing the next Get to
// rebuild it from the Destination it is given.
const idleEvictionInterval = 10 * time.Minute

type pooledAdapter struct {
	adapter  Adapter
	lastUsed time.Time
}

// Pool lazily builds and caches one Adapter per destination, evicting
// entries that haven't been used recently. The built-in SFTP and Drive
// adapters open a new connection or client on every call, so a cached entry
// holds the destination's parsed config and secrets, not a live connection.
type Pool struct {
	mu       sync.Mutex
	entries  map[string]*pooledAdapter
	registry *Registry
	logger   *zap.Logger
}

// NewPool builds a Pool backed by the given Registry. It has no background
// goroutine of its own — call SweepIdle periodically to evict idle entries.
func NewPool(registry *Registry, logger *zap.Logger) *Pool {
	p := &Pool{
		entries:  make(map[string]*pooledAdapter),
		registry: registry,
		logger:   logger.Named("storage.pool"),
	}
	return p
}

// Get returns a cached Adapter for destination, building and caching one on
// first use via the Registry.
func (p *Pool) Get(destination *db.Destination) (Adapter, error) {
	key := destination.ID.String()

	p.mu.Lock()
	if entry, ok := p.entries[key]; ok {
		entry.lastUsed = time.Now()
		p.mu.Unlock()
		return entry.adapter, nil
	}
	p.mu.Unlock()

	adapter, err := p.registry.Build(destination)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.entries[key] = &pooledAdapter{adapter: adapter, lastUsed: time.Now()}
	p.mu.Unlock()

	return adapter, nil
}

// Evict drops destination's cached Adapter, forcing a rebuild on next Get.
// Called after config/secrets are updated so a stale client isn't reused.
func (p *Pool) Evict(destinationID string) {
	p.mu.Lock()
	delete(p.entries, destinationID)
	p.mu.Unlock()
}

// SweepIdle removes every cached entry untouched for longer than
// idleEvictionInterval. Intended to be called periodically (e.g. from the
// scheduler's own tick loop) rather than run on its own timer, so the pool
// has no background goroutine to shut down at process exit.
func (p *Pool) SweepIdle() {
	cutoff := time.Now().Add(-idleEvictionInterval)

	p.mu.Lock()
	defer p.mu.Unlock()
	for key, entry := range p.entries {
		if entry.lastUsed.Before(cutoff) {
			delete(p.entries, key)
			p.logger.Debug("evicted idle destination adapter", zap.String("destination_id", key))
		}
	}
}

// Registry resolves a Destination's destination_type to the Factory that
// builds its Adapter.
type Registry struct {
	factories map[db.DestinationType]Factory
}

// NewRegistry builds a Registry preloaded with the three built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[db.DestinationType]Factory)}
	r.Register(db.DestinationTypeLocal, NewLocalAdapter)
	r.Register(db.DestinationTypeSFTP, NewSFTPAdapter)
	r.Register(db.DestinationTypeGoogleDrive, NewGDriveAdapter)
	return r
}

// Register installs or replaces the Factory for a destination_type.
// Exposed mainly for tests to install fakes.
func (r *Registry) Register(destinationType db.DestinationType, factory Factory) {
	r.factories[destinationType] = factory
}

// Build constructs a fresh Adapter for destination via its registered
// Factory.
func (r *Registry) Build(destination *db.Destination) (Adapter, error) {
	factory, ok := r.factories[destination.DestinationType]
	if !ok {
		return nil, fmt.Errorf("storage: unsupported destination type %q", destination.DestinationType)
	}
	return factory(destination)
}
