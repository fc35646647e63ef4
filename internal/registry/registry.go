// Package registry tracks the set of actively watched instruments, mapping
// "venue:symbol" keys onto running Watchers.
package registry

import (
	"context"
	"fmt"
	"sync"

	"flowradar/internal/contracts"
	"flowradar/internal/exchange"
	"flowradar/internal/model"
	"flowradar/internal/watcher"
)

// AdapterFactory builds a fresh Adapter for one venue; the registry needs a
// new Adapter instance per watched instrument since Adapter.Run is not
// meant to be shared across concurrent symbols.
type AdapterFactory func(model.Venue) (exchange.Adapter, error)

type entry struct {
	w      *watcher.Watcher
	cancel context.CancelFunc
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	watched  map[string]*entry
	catalog  *contracts.Catalog
	adapters AdapterFactory
	sink     watcher.Sink
}

func New(catalog *contracts.Catalog, adapters AdapterFactory, sink watcher.Sink) *Registry {
	return &Registry{
		watched:  make(map[string]*entry),
		catalog:  catalog,
		adapters: adapters,
		sink:     sink,
	}
}

// Watch begins tracking an instrument if it isn't already watched. It
// rejects instruments absent from the contract catalog. Calling Watch on an
// already-watched instrument is a no-op.
func (r *Registry) Watch(ctx context.Context, inst model.Instrument) error {
	if _, ok := r.catalog.Get(inst.Venue, inst.Symbol); !ok {
		return fmt.Errorf("registry: unknown instrument %s", inst.Key())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.watched[inst.Key()]; ok {
		return nil
	}

	adapter, err := r.adapters(inst.Venue)
	if err != nil {
		return fmt.Errorf("registry: build adapter for %s: %w", inst.Key(), err)
	}

	w := watcher.New(inst, adapter, r.sink)
	runCtx, cancel := context.WithCancel(ctx)
	r.watched[inst.Key()] = &entry{w: w, cancel: cancel}

	go w.Run(runCtx)

	return nil
}

// Unwatch stops and removes an instrument's watcher. It is a no-op if the
// instrument isn't currently watched.
func (r *Registry) Unwatch(inst model.Instrument) {
	r.mu.Lock()
	e, ok := r.watched[inst.Key()]
	if ok {
		delete(r.watched, inst.Key())
	}
	r.mu.Unlock()

	if ok {
		e.cancel()
		e.w.Stop()
	}
}

// List returns the keys of all currently watched instruments.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.watched))
	for k := range r.watched {
		out = append(out, k)
	}
	return out
}

// State returns the live InstrumentState snapshot for a watched instrument.
func (r *Registry) State(inst model.Instrument) (model.InstrumentState, bool) {
	r.mu.Lock()
	e, ok := r.watched[inst.Key()]
	r.mu.Unlock()
	if !ok {
		return model.InstrumentState{}, false
	}
	return e.w.State(), true
}
