// Package blocking_pool keeps blocking syscalls (pipe reads and writes,
// process waits) off the goroutines that dispatch messages. Pools are looked
// up by name so that a deployment can choose how many concurrent blocking
// calls it tolerates.
package blocking_pool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultPoolName is the pool used when callers don't name one.
const DefaultPoolName = "blocking-io-dispatcher"

// MinBoundedWorkers is the smallest limit a bounded pool may have. A single
// supervised process can hold three blocking calls at once (one write, two
// reads); fewer would let a write wait forever for a read slot.
const MinBoundedWorkers = 3

var ErrUnknownPool = errors.New("unknown blocking pool")

// Pool runs blocking functions with an optional concurrency limit.
type Pool struct {
	name       string
	maxWorkers int
	group      *errgroup.Group
}

// NewPool returns a pool. maxWorkers <= 0 means unbounded.
func NewPool(name string, maxWorkers int) (*Pool, error) {
	if maxWorkers > 0 && maxWorkers < MinBoundedWorkers {
		return nil, fmt.Errorf("pool %q: max workers must be 0 (unbounded) or at least %d, got %d", name, MinBoundedWorkers, maxWorkers)
	}

	group := new(errgroup.Group)
	if maxWorkers > 0 {
		group.SetLimit(maxWorkers)
	} else {
		maxWorkers = 0
	}

	return &Pool{
		name:       name,
		maxWorkers: maxWorkers,
		group:      group,
	}, nil
}

func (p *Pool) Name() string {
	return p.name
}

// MaxWorkers returns the limit, 0 meaning unbounded.
func (p *Pool) MaxWorkers() int {
	return p.maxWorkers
}

// Submit runs fn on a pool goroutine without blocking the caller. When a
// bounded pool is full, fn waits for a free slot on a goroutine of its own.
func (p *Pool) Submit(fn func()) {
	task := func() error {
		fn()
		return nil
	}

	if !p.group.TryGo(task) {
		go p.group.Go(task)
	}
}

// Registry maps pool names to pools.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

// NewRegistry builds a registry from name → max workers. The default pool is
// added, unbounded, unless limits names it.
func NewRegistry(limits map[string]int) (*Registry, error) {
	r := &Registry{pools: make(map[string]*Pool)}

	if _, ok := limits[DefaultPoolName]; !ok {
		r.pools[DefaultPoolName], _ = NewPool(DefaultPoolName, 0)
	}

	for name, maxWorkers := range limits {
		if name == "" {
			return nil, errors.New("pool name cannot be empty")
		}

		pool, err := NewPool(name, maxWorkers)
		if err != nil {
			return nil, err
		}
		r.pools[name] = pool
	}

	return r, nil
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry holding only the default pool.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry, _ = NewRegistry(nil)
	})
	return defaultRegistry
}

// Lookup returns the named pool. An empty name selects the default pool.
func (r *Registry) Lookup(name string) (*Pool, error) {
	if name == "" {
		name = DefaultPoolName
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	pool, ok := r.pools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPool, name)
	}
	return pool, nil
}

// Names returns the registered pool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.pools))
	for name := range r.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
