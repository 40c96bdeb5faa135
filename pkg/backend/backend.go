// Package backend defines the contract between the gateway and its data
// sources.
//
// A Fetcher executes a query.Plan and returns rows keyed by field name. The
// jsondoc, sqlstore and sparql subpackages implement it; the Registry maps
// the backend names used in the configuration to live fetchers.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/errdefs"
	"github.com/gqlgate/gqlgate/pkg/query"
)

// Row is one fetched entity, keyed by GraphQL field name. Nested objects are
// map[string]any and lists are []any.
type Row = map[string]any

// Fetcher executes plans against one data source.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, plan *query.Plan) ([]Row, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, plan *query.Plan) ([]Row, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, plan *query.Plan) ([]Row, error) {
	return f(ctx, plan)
}

// Wrapper decorates the fetcher registered under name. A wrapper that
// hides an io.Closer must forward Close.
type Wrapper func(name string, f Fetcher) Fetcher

// Registry maps backend names to fetchers.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[string]Fetcher)}
}

// Register adds f under name. Registering a name twice is a configuration error.
func (r *Registry) Register(name string, f Fetcher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fetchers[name]; exists {
		return errdefs.InvalidConfiguration("backends."+name, "backend registered twice")
	}
	r.fetchers[name] = f
	return nil
}

// Get returns the fetcher registered under name.
func (r *Registry) Get(name string) (Fetcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fetchers[name]
	if !ok {
		return nil, errdefs.InvalidConfiguration("backends."+name, "no backend registered")
	}
	return f, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.fetchers))
	for name := range r.fetchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every fetcher that implements io.Closer.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, f := range r.fetchers {
		if c, ok := f.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close backend %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// WireValue converts a native value to its wire form for use as a query
// parameter or comparison operand. Lists convert element-wise and values no
// converter claims pass through unchanged.
func WireValue(router *convert.Router, v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			w, err := WireValue(router, item)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	}
	if router == nil || !router.CanConvert(v) {
		return v, nil
	}
	return router.ConvertFromValue(v)
}

// EntityKeys returns the field and composite keys of plan, the alternatives
// a row may match. FilterKeys are left out: each restates a leaf of a
// filter that the backend already applies.
func EntityKeys(plan *query.Plan) []query.Key {
	var keys []query.Key
	for _, k := range plan.Keys {
		switch k.Value.(type) {
		case query.FieldKey, query.CompositeKey:
			keys = append(keys, k.Value)
		}
	}
	return keys
}
