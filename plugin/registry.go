package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/subvault/event"
)

// DefaultTimeout bounds a single plugin call.
const DefaultTimeout = 5 * time.Second

// Registry manages registered plugins and dispatches events to them. Hook
// implementations are discovered once at registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                []OnInit
	onShutdown            []OnShutdown
	onEvent               []OnEvent
	onSubscriptionCreated []OnSubscriptionCreated
	onDeposited           []OnDeposited
	onPaused              []OnPaused
	onResumed             []OnResumed
	onCancelled           []OnCancelled
	onCharged             []OnCharged
	onChargeFailed        []OnChargeFailed
	onUsageCharged        []OnUsageCharged
	onBatchCharged        []OnBatchCharged
	onWithdrawn           []OnWithdrawn
	onMinTopupUpdated     []OnMinTopupUpdated
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call plugin timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin and caches the hooks it implements.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}
	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnEvent); ok {
		r.onEvent = append(r.onEvent, v)
		hooks = append(hooks, "OnEvent")
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
		hooks = append(hooks, "OnSubscriptionCreated")
	}
	if v, ok := p.(OnDeposited); ok {
		r.onDeposited = append(r.onDeposited, v)
		hooks = append(hooks, "OnDeposited")
	}
	if v, ok := p.(OnPaused); ok {
		r.onPaused = append(r.onPaused, v)
		hooks = append(hooks, "OnPaused")
	}
	if v, ok := p.(OnResumed); ok {
		r.onResumed = append(r.onResumed, v)
		hooks = append(hooks, "OnResumed")
	}
	if v, ok := p.(OnCancelled); ok {
		r.onCancelled = append(r.onCancelled, v)
		hooks = append(hooks, "OnCancelled")
	}
	if v, ok := p.(OnCharged); ok {
		r.onCharged = append(r.onCharged, v)
		hooks = append(hooks, "OnCharged")
	}
	if v, ok := p.(OnChargeFailed); ok {
		r.onChargeFailed = append(r.onChargeFailed, v)
		hooks = append(hooks, "OnChargeFailed")
	}
	if v, ok := p.(OnUsageCharged); ok {
		r.onUsageCharged = append(r.onUsageCharged, v)
		hooks = append(hooks, "OnUsageCharged")
	}
	if v, ok := p.(OnBatchCharged); ok {
		r.onBatchCharged = append(r.onBatchCharged, v)
		hooks = append(hooks, "OnBatchCharged")
	}
	if v, ok := p.(OnWithdrawn); ok {
		r.onWithdrawn = append(r.onWithdrawn, v)
		hooks = append(hooks, "OnWithdrawn")
	}
	if v, ok := p.(OnMinTopupUpdated); ok {
		r.onMinTopupUpdated = append(r.onMinTopupUpdated, v)
		hooks = append(hooks, "OnMinTopupUpdated")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)
	return nil
}

// Get returns a plugin by name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins in registration order.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Dispatch
// ──────────────────────────────────────────────────

// dispatch calls fn for each plugin in ps. Failures are logged and never
// reach the caller; a plugin cannot fail a vault operation.
func dispatch[T Plugin](ctx context.Context, r *Registry, hook string, ps []T, fn func(T) error) {
	for _, p := range ps {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

func snapshot[T any](r *Registry, ps *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *ps
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, vault any) {
	dispatch(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, vault)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	dispatch(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// Emit routes ev to the typed hook for its payload, then to every OnEvent
// plugin.
func (r *Registry) Emit(ctx context.Context, ev event.Event) {
	switch e := ev.(type) {
	case *event.SubscriptionCreated:
		dispatch(ctx, r, "OnSubscriptionCreated", snapshot(r, &r.onSubscriptionCreated), func(p OnSubscriptionCreated) error {
			return p.OnSubscriptionCreated(ctx, e)
		})
	case *event.Deposited:
		dispatch(ctx, r, "OnDeposited", snapshot(r, &r.onDeposited), func(p OnDeposited) error {
			return p.OnDeposited(ctx, e)
		})
	case *event.Charged:
		dispatch(ctx, r, "OnCharged", snapshot(r, &r.onCharged), func(p OnCharged) error {
			return p.OnCharged(ctx, e)
		})
	case *event.ChargeFailed:
		dispatch(ctx, r, "OnChargeFailed", snapshot(r, &r.onChargeFailed), func(p OnChargeFailed) error {
			return p.OnChargeFailed(ctx, e)
		})
	case *event.UsageCharged:
		dispatch(ctx, r, "OnUsageCharged", snapshot(r, &r.onUsageCharged), func(p OnUsageCharged) error {
			return p.OnUsageCharged(ctx, e)
		})
	case *event.BatchCharged:
		dispatch(ctx, r, "OnBatchCharged", snapshot(r, &r.onBatchCharged), func(p OnBatchCharged) error {
			return p.OnBatchCharged(ctx, e)
		})
	case *event.StatusChanged:
		r.emitStatusChanged(ctx, e)
	case *event.Withdrawn:
		dispatch(ctx, r, "OnWithdrawn", snapshot(r, &r.onWithdrawn), func(p OnWithdrawn) error {
			return p.OnWithdrawn(ctx, e)
		})
	case *event.MinTopupUpdated:
		dispatch(ctx, r, "OnMinTopupUpdated", snapshot(r, &r.onMinTopupUpdated), func(p OnMinTopupUpdated) error {
			return p.OnMinTopupUpdated(ctx, e)
		})
	default:
		r.logger.Debug("no typed hook for event", "topic", ev.EventMeta().Topic)
	}

	dispatch(ctx, r, "OnEvent", snapshot(r, &r.onEvent), func(p OnEvent) error {
		return p.OnEvent(ctx, ev)
	})
}

func (r *Registry) emitStatusChanged(ctx context.Context, e *event.StatusChanged) {
	switch e.Topic {
	case event.TopicPaused:
		dispatch(ctx, r, "OnPaused", snapshot(r, &r.onPaused), func(p OnPaused) error {
			return p.OnPaused(ctx, e)
		})
	case event.TopicResumed:
		dispatch(ctx, r, "OnResumed", snapshot(r, &r.onResumed), func(p OnResumed) error {
			return p.OnResumed(ctx, e)
		})
	case event.TopicCancelled:
		dispatch(ctx, r, "OnCancelled", snapshot(r, &r.onCancelled), func(p OnCancelled) error {
			return p.OnCancelled(ctx, e)
		})
	}
}

// callWithTimeout runs fn, giving up after the registry timeout or when ctx
// is done. Plugins must never block the billing path.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
