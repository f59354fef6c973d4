package layer

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/infigaming-com/go-channels/errors"
)

// Manager owns the backends of a process, one per alias. Backends are built
// on first use and cached; concurrent first use of an alias builds it once.
type Manager struct {
	lg      *zap.Logger
	configs Config

	mu       sync.RWMutex
	backends map[string]Backend
	closed   bool

	inflight singleflight.Group
}

// NewManager creates a manager for cfg. The configuration is copied and not
// read again.
func NewManager(lg *zap.Logger, cfg Config) *Manager {
	if lg == nil {
		lg = zap.L()
	}
	return &Manager{
		lg:       lg,
		configs:  maps.Clone(cfg),
		backends: map[string]Backend{},
	}
}

// Get returns the backend for alias, building it on first use. ok is false
// when the alias is not configured at all, which callers treat as pub/sub
// being disabled. A configured alias that cannot be built yields an error
// wrapping ErrInvalidChannelLayer.
func (m *Manager) Get(ctx context.Context, alias string) (backend Backend, ok bool, err error) {
	if b, found, err := m.cached(alias); err != nil || found {
		return b, found, err
	}
	cfg, configured := m.configs[alias]
	if !configured {
		return nil, false, nil
	}

	v, err, _ := m.inflight.Do(alias, func() (any, error) {
		if b, found, err := m.cached(alias); err != nil || found {
			return b, err
		}
		// Construction is shared by every waiter, so one caller giving up must not abort it.
		b, err := m.make(context.WithoutCancel(ctx), alias, cfg)
		if err != nil {
			return nil, err
		}
		return m.store(ctx, alias, b)
	})
	if err != nil {
		return nil, false, err
	}
	return v.(Backend), true, nil
}

// Contains reports whether alias is configured, whether or not its backend was built.
func (m *Manager) Contains(alias string) bool {
	_, ok := m.configs[alias]
	return ok
}

// Aliases returns the configured aliases in sorted order.
func (m *Manager) Aliases() []string {
	return slices.Sorted(maps.Keys(m.configs))
}

// Replace swaps the cached backend for alias and returns the previous one,
// or nil. The configuration is left alone, which makes it the way to
// substitute a test double.
func (m *Manager) Replace(alias string, backend Backend) Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.backends[alias]
	if backend == nil {
		delete(m.backends, alias)
	} else {
		m.backends[alias] = backend
	}
	m.lg.Debug("channel layer replaced", zap.String("alias", alias), zap.Bool("had_previous", old != nil))
	return old
}

// Close releases every built backend that holds resources. The manager
// refuses further lookups afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	backends := m.backends
	m.backends = map[string]Backend{}
	m.mu.Unlock()

	var errs []error
	for alias, b := range backends {
		if err := closeBackend(ctx, b); err != nil {
			m.lg.Error("failed to close channel layer", zap.String("alias", alias), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (m *Manager) cached(alias string) (Backend, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, errors.NewError(ErrCodeClosed, "channel layer manager is closed", ErrClosed)
	}
	b, ok := m.backends[alias]
	return b, ok, nil
}

func (m *Manager) store(ctx context.Context, alias string, b Backend) (Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		m.discard(ctx, alias, b)
		return nil, errors.NewError(ErrCodeClosed, "channel layer manager is closed", ErrClosed)
	}
	// A Replace may have won the race while the backend was being built.
	if existing, ok := m.backends[alias]; ok {
		m.discard(ctx, alias, b)
		return existing, nil
	}
	m.backends[alias] = b
	return b, nil
}

func (m *Manager) make(ctx context.Context, alias string, cfg BackendConfig) (Backend, error) {
	if cfg.Backend == "" {
		return nil, errors.Errorf(ErrCodeMissingBackend, ErrInvalidChannelLayer, "no backend specified for %s", alias)
	}
	factory, ok := lookupFactory(cfg.Backend)
	if !ok {
		return nil, errors.Errorf(ErrCodeUnknownBackend, ErrInvalidChannelLayer,
			"cannot find backend %q specified for %s", cfg.Backend, alias).WithDetails(Backends())
	}

	config := cfg.Config
	if config == nil {
		config = map[string]any{}
	}
	b, err := factory(ctx, m.lg.With(zap.String("alias", alias), zap.String("backend", cfg.Backend)), config)
	if err != nil {
		return nil, errors.Errorf(ErrCodeBackendInit, fmt.Errorf("%w: %w", ErrInvalidChannelLayer, err),
			"cannot initialise backend %q for %s", cfg.Backend, alias)
	}
	m.lg.Info("channel layer initialised", zap.String("alias", alias), zap.String("backend", cfg.Backend))
	return b, nil
}

// discard closes a freshly built backend that lost its place to the manager
// closing or to a Replace.
func (m *Manager) discard(ctx context.Context, alias string, b Backend) {
	if err := closeBackend(ctx, b); err != nil {
		m.lg.Warn("failed to close discarded channel layer", zap.String("alias", alias), zap.Error(err))
	}
}

func closeBackend(ctx context.Context, b Backend) error {
	if c, ok := b.(Closer); ok {
		return c.Close(ctx)
	}
	return nil
}
