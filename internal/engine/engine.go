// Package engine executes entity lifecycle operations as transaction-bound
// hook pipelines: pre -> operation -> post -> commit -> after, always in
// that order for one logical call. It owns the error taxonomy at the domain
// boundary and applies field exposure to everything it returns.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"terrane/internal/dispatch"
	"terrane/internal/model"
	"terrane/internal/platform/metrics"
	"terrane/internal/projection"
	"terrane/internal/registry"
	"terrane/internal/relation"
	"terrane/internal/storage"
	"terrane/pkg/domainerrors"
	"terrane/pkg/platform/sentinel"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Config wires an Engine. Registry, Store, Logger, and Dispatcher are
// required; Hooks and Metrics may be nil.
type Config struct {
	Registry   *registry.Registry
	Store      storage.Store
	Hooks      HookSet
	Dispatcher *dispatch.Dispatcher
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Engine is the domain execution engine. It is safe for concurrent use; all
// mutable state lives in per-call transaction scopes.
type Engine struct {
	reg        *registry.Registry
	store      storage.Store
	hooks      HookSet
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger
	metrics    *metrics.Metrics
	project    *projection.Projector
	resolver   *relation.Resolver
}

func New(cfg Config) *Engine {
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = HookSet{}
	}
	return &Engine{
		reg:        cfg.Registry,
		store:      cfg.Store,
		hooks:      hooks,
		dispatcher: cfg.Dispatcher,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
		project:    projection.New(cfg.Registry),
		resolver:   relation.New(cfg.Registry),
	}
}

// Registry exposes the descriptors the engine was built with; the transport
// layer uses it to build routes.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Transact runs fn inside a single transaction scope. Engine calls made with
// the context fn receives share that transaction; after-hooks they schedule
// run only once this scope commits. This is the default Transaction
// Coordinator for callers that need multi-operation atomicity.
func (e *Engine) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	// Nested coordinators share the outer transaction unconditionally.
	return e.runScoped(ctx, func(ctx context.Context, _ *storage.Scope) error {
		return fn(ctx)
	})
}

// run executes one operation pipeline. When the context already carries a
// scope the caller owns commit/rollback and after-hooks queue on that scope;
// otherwise the engine opens, commits, and dispatches itself.
func (e *Engine) run(ctx context.Context, entity *registry.Entity, op Operation, fn func(ctx context.Context, scope *storage.Scope) error) error {
	start := time.Now()
	err := e.runScoped(ctx, fn)
	e.observe(entity.Name, op, start, err)
	return err
}

func (e *Engine) runScoped(ctx context.Context, fn func(ctx context.Context, scope *storage.Scope) error) error {
	if scope, ok := storage.ScopeFrom(ctx); ok {
		return fn(ctx, scope)
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return domainerrors.Wrap(domainerrors.CodeInternal, "begin transaction", err)
	}
	scope := storage.NewScope(tx)
	if err := fn(storage.WithScope(ctx, scope), scope); err != nil {
		if rbErr := scope.Rollback(ctx); rbErr != nil {
			e.log.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	queued, err := scope.Commit(ctx)
	if err != nil {
		return domainerrors.Wrap(domainerrors.CodeInternal, "commit transaction", err)
	}
	e.dispatchAll(queued)
	return nil
}

func (e *Engine) dispatchAll(queued []func(context.Context)) {
	for _, fn := range queued {
		fn(context.Background())
	}
}

// scheduleAfter queues an after-hook on the scope; it reaches the background
// executor only when the transaction commits.
func (e *Engine) scheduleAfter(scope *storage.Scope, entity string, op Operation, hook func(ctx context.Context) error) {
	if hook == nil {
		return
	}
	name := fmt.Sprintf("%s.%s.after", entity, op)
	scope.OnCommit(func(context.Context) {
		e.dispatcher.Dispatch(dispatch.Task{Name: name, Run: hook})
	})
}

func (e *Engine) observe(entity string, op Operation, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		if domainerrors.CodeOf(err) == domainerrors.CodeInternal {
			outcome = "server_error"
		} else {
			outcome = "client_error"
		}
	}
	e.metrics.Operations.WithLabelValues(entity, string(op), outcome).Inc()
	e.metrics.OperationDuration.WithLabelValues(entity, string(op)).Observe(time.Since(start).Seconds())
}

func (e *Engine) entity(name string) (*registry.Entity, error) {
	ent, ok := e.reg.Entity(name)
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeValidation, "unknown entity %q", name)
	}
	return ent, nil
}

// hookErr classifies a pre/post hook failure. Hooks that return coded errors
// keep their code; everything else is treated as a business-rule rejection.
func (e *Engine) hookErr(entity *registry.Entity, stage string, err error) error {
	if e.metrics != nil {
		e.metrics.HookFailures.WithLabelValues(entity.Name, stage).Inc()
	}
	var de *domainerrors.Error
	if errors.As(err, &de) {
		return err
	}
	return domainerrors.Wrap(domainerrors.CodeValidation, err.Error(), err)
}

// storeErr maps sentinel failures from the storage collaborator onto the
// domain taxonomy. Unrecognized failures default to internal so no storage
// detail leaks to clients.
func (e *Engine) storeErr(entity *registry.Entity, id string, err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		if id != "" {
			return domainerrors.Wrap(domainerrors.CodeNotFound, fmt.Sprintf("%s %q not found", entity.Name, id), err)
		}
		return domainerrors.Wrap(domainerrors.CodeNotFound, entity.Name+" not found", err)
	case errors.Is(err, sentinel.ErrConflict):
		// The client message names the row, never the driver's wrap chain.
		if id != "" {
			return domainerrors.Wrap(domainerrors.CodeConflict, fmt.Sprintf("%s %q already exists", entity.Name, id), err)
		}
		return domainerrors.Wrap(domainerrors.CodeConflict, entity.Name+" conflicts with an existing row", err)
	case errors.Is(err, sentinel.ErrIntegrity):
		if id != "" {
			return domainerrors.Wrap(domainerrors.CodeIntegrity, fmt.Sprintf("%s %q violates a referential constraint", entity.Name, id), err)
		}
		return domainerrors.Wrap(domainerrors.CodeIntegrity, entity.Name+" violates a referential constraint", err)
	default:
		e.log.Error("storage failure", "entity", entity.Name, "error", err)
		return domainerrors.Wrap(domainerrors.CodeInternal, "storage failure", err)
	}
}

// normalizeInput validates a write payload against the descriptor: unknown
// fields are client errors, relation names are not writable, and the primary
// key is only accepted on create.
func normalizeInput(entity *registry.Entity, input model.Instance, create bool) (model.Instance, error) {
	out := make(model.Instance, len(input))
	for name, value := range input {
		f, ok := entity.Field(name)
		if !ok {
			return nil, domainerrors.Newf(domainerrors.CodeValidation, "unknown field %q for %s", name, entity.Name)
		}
		if f.Name == entity.PrimaryKey && !create {
			return nil, domainerrors.Newf(domainerrors.CodeValidation, "primary key %q cannot be updated", name)
		}
		if name == entity.SoftDelete || name == entity.CreatedAt || name == entity.UpdatedAt {
			return nil, domainerrors.Newf(domainerrors.CodeValidation, "field %q is managed by the engine", name)
		}
		out[name] = value
	}
	return out, nil
}
