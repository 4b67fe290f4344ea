package boundary

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/citypulse-labs/citypulse/internal/adjacency"
)

// ErrNotLoaded is returned before the first successful load.
var ErrNotLoaded = eris.New("boundary: dataset not loaded")

// Snapshot is one successfully loaded dataset.
type Snapshot struct {
	Collection adjacency.Collection
	Source     string
	LoadedAt   time.Time
}

// Source loads a boundary collection. *Loader satisfies it.
type Source interface {
	Load(ctx context.Context, source string) (adjacency.Collection, error)
}

// Registry holds the current boundary collection. Readers never block;
// Reload replaces the collection only when the new load succeeds.
type Registry struct {
	loader Source
	source string

	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // serializes reloads
}

// NewRegistry creates an empty registry that loads from source.
func NewRegistry(loader Source, source string) *Registry {
	if source == "" {
		source = DefaultSource
	}
	return &Registry{loader: loader, source: source}
}

// Snapshot returns the current dataset or ErrNotLoaded.
func (r *Registry) Snapshot() (*Snapshot, error) {
	s := r.current.Load()
	if s == nil {
		return nil, ErrNotLoaded
	}
	return s, nil
}

// Collection returns the current collection or ErrNotLoaded.
func (r *Registry) Collection() (adjacency.Collection, error) {
	s, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	return s.Collection, nil
}

// Ready reports whether a dataset has been loaded.
func (r *Registry) Ready() bool {
	return r.current.Load() != nil
}

// Reload loads the configured source. On failure the previous dataset, if
// any, stays in place and the error is returned.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.loader.Load(ctx, r.source)
	if err != nil {
		zap.L().Error("boundary: reload failed, keeping previous dataset",
			zap.String("source", r.source),
			zap.Bool("has_previous", r.Ready()),
			zap.Error(err),
		)
		return eris.Wrap(err, "boundary: reload")
	}
	if len(c) == 0 {
		zap.L().Error("boundary: reload returned no features, keeping previous dataset",
			zap.String("source", r.source),
		)
		return eris.Errorf("boundary: source %s has no features", r.source)
	}

	r.current.Store(&Snapshot{
		Collection: c,
		Source:     r.source,
		LoadedAt:   time.Now(),
	})
	return nil
}

// Set installs a collection directly, bypassing the loader.
func (r *Registry) Set(c adjacency.Collection, source string) {
	r.current.Store(&Snapshot{Collection: c, Source: source, LoadedAt: time.Now()})
}

// Run loads the dataset in the background. Until the first load succeeds it
// retries every retryInterval; afterwards it reloads every refresh, or stops
// when refresh is not positive. It returns when ctx is done.
func (r *Registry) Run(ctx context.Context, retryInterval, refresh time.Duration) {
	if retryInterval <= 0 {
		retryInterval = 30 * time.Second
	}
	for !r.Ready() {
		if err := r.Reload(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryInterval):
		}
	}
	if refresh <= 0 {
		return
	}

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Reload(ctx)
		}
	}
}
