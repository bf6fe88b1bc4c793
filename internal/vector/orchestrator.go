package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hyperjump/kiku/internal/models"
	"go.uber.org/zap"
)

// DefaultBackendTimeout bounds a single backend operation.
const DefaultBackendTimeout = 10 * time.Second

// Attempt records one backend that could not serve a call.
type Attempt struct {
	Kind models.BackendKind
	Err  error
}

// FallbackError is returned when every backend failed with
// models.ErrBackendUnavailable. It matches models.ErrAllBackendsUnavailable.
type FallbackError struct {
	Op       string
	Attempts []Attempt
}

func (e *FallbackError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Kind, a.Err)
	}
	return fmt.Sprintf("%s: %v (%s)", e.Op, models.ErrAllBackendsUnavailable, strings.Join(parts, "; "))
}

// Is reports a match for models.ErrAllBackendsUnavailable.
func (e *FallbackError) Is(target error) bool {
	return target == models.ErrAllBackendsUnavailable
}

// Orchestrator routes every call through the configured backends in priority
// order. Each call starts from the top: there is no memory of which backend
// worked last time, and a fallback write is never copied to higher-priority
// backends.
type Orchestrator struct {
	backends []PrioritizedBackend
	timeout  time.Duration
	logger   *zap.Logger

	populated  atomic.Bool
	lastUpsert atomic.Value // models.BackendKind
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithBackendTimeout sets the per-backend operation timeout.
func WithBackendTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets a logger for fallback and fragmentation warnings.
func WithLogger(l *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator keeps the configured backends, sorted by ascending priority.
// Unconfigured backends are closed and dropped. At least one must remain.
func NewOrchestrator(backends []PrioritizedBackend, opts ...OrchestratorOption) (*Orchestrator, error) {
	o := &Orchestrator{timeout: DefaultBackendTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	for _, pb := range backends {
		if pb.Backend == nil {
			continue
		}
		if !pb.Backend.IsConfigured() {
			o.logger.Debug("vector backend not configured, skipping", zap.String("kind", string(pb.Backend.Kind())))
			_ = pb.Backend.Close()
			continue
		}
		o.backends = append(o.backends, pb)
	}
	if len(o.backends) == 0 {
		return nil, errors.New("no vector backend is configured")
	}
	sort.SliceStable(o.backends, func(i, j int) bool { return o.backends[i].Priority < o.backends[j].Priority })
	kinds := make([]string, len(o.backends))
	for i, pb := range o.backends {
		kinds[i] = string(pb.Backend.Kind())
	}
	o.logger.Info("vector backends ready", zap.Strings("order", kinds))
	return o, nil
}

// Kinds returns the active backend kinds in fallback order.
func (o *Orchestrator) Kinds() []models.BackendKind {
	kinds := make([]models.BackendKind, len(o.backends))
	for i, pb := range o.backends {
		kinds[i] = pb.Backend.Kind()
	}
	return kinds
}

// WithFallback runs op against each backend in order until one succeeds.
// models.ErrBackendUnavailable (including a per-backend timeout) moves on to
// the next backend; any other error is returned at once. A cancelled ctx
// stops the loop with the context error.
func (o *Orchestrator) WithFallback(ctx context.Context, opName string, op func(context.Context, Backend) error) (models.BackendKind, error) {
	var attempts []Attempt
	for _, pb := range o.backends {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		kind := pb.Backend.Kind()
		opCtx, cancel := context.WithTimeout(ctx, o.timeout)
		err := op(opCtx, pb.Backend)
		timedOut := errors.Is(opCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return kind, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if timedOut && !errors.Is(err, models.ErrBackendUnavailable) {
			err = fmt.Errorf("%w: timed out after %s: %w", models.ErrBackendUnavailable, o.timeout, err)
		}
		if !errors.Is(err, models.ErrBackendUnavailable) {
			return kind, err
		}
		level := zap.WarnLevel
		if errors.Is(err, models.ErrIndexEmpty) {
			level = zap.DebugLevel
		}
		o.logger.Log(level, "vector backend unavailable, falling back",
			zap.String("op", opName), zap.String("kind", string(kind)), zap.Error(err))
		attempts = append(attempts, Attempt{Kind: kind, Err: err})
	}
	return "", &FallbackError{Op: opName, Attempts: attempts}
}

// Upsert writes chunks to the first backend that accepts them.
func (o *Orchestrator) Upsert(ctx context.Context, chunks []models.DocumentChunk) (models.BackendKind, error) {
	kind, err := o.WithFallback(ctx, "upsert", func(ctx context.Context, b Backend) error {
		return b.Upsert(ctx, chunks)
	})
	if err != nil {
		return kind, err
	}
	o.populated.Store(true)
	if prev, ok := o.lastUpsert.Load().(models.BackendKind); ok && prev != kind {
		o.logger.Warn("chunks are now split across vector backends",
			zap.String("previous", string(prev)), zap.String("current", string(kind)))
	}
	o.lastUpsert.Store(kind)
	return kind, nil
}

// Query returns the k most similar chunks from the first backend that can answer.
func (o *Orchestrator) Query(ctx context.Context, vector []float32, k int) ([]models.RetrievalResult, models.BackendKind, error) {
	var results []models.RetrievalResult
	kind, err := o.WithFallback(ctx, "query", func(ctx context.Context, b Backend) error {
		r, err := b.Query(ctx, vector, k)
		if err != nil {
			return err
		}
		results = r
		return nil
	})
	if err != nil {
		return nil, kind, err
	}
	if last, ok := o.lastUpsert.Load().(models.BackendKind); ok && last != kind {
		o.logger.Warn("query served by a different backend than the last upsert; results may be incomplete",
			zap.String("served_by", string(kind)), zap.String("last_upsert", string(last)))
	}
	return results, kind, nil
}

// Populated reports whether an upsert succeeded in this process or a local
// backend already holds chunks. Remote backends are not probed.
func (o *Orchestrator) Populated(ctx context.Context) bool {
	if o.populated.Load() {
		return true
	}
	for _, pb := range o.backends {
		switch pb.Backend.Kind() {
		case models.BackendLocalPersistent, models.BackendInMemoryEphemeral:
			if n, err := pb.Backend.Size(ctx); err == nil && n > 0 {
				return true
			}
		}
	}
	return false
}

// Descriptors probes every backend with Size and reports its health for this call only.
func (o *Orchestrator) Descriptors(ctx context.Context) []models.BackendDescriptor {
	out := make([]models.BackendDescriptor, len(o.backends))
	for i, pb := range o.backends {
		probeCtx, cancel := context.WithTimeout(ctx, o.timeout)
		n, err := pb.Backend.Size(probeCtx)
		cancel()
		d := models.BackendDescriptor{
			Kind:     pb.Backend.Kind(),
			Priority: pb.Priority,
			Healthy:  err == nil,
			Size:     n,
		}
		if err != nil {
			d.Error = err.Error()
		}
		out[i] = d
	}
	return out
}

// Close closes every backend.
func (o *Orchestrator) Close() error {
	var errs []error
	for _, pb := range o.backends {
		if err := pb.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", pb.Backend.Kind(), err))
		}
	}
	return errors.Join(errs...)
}
