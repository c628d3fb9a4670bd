// Package resolve walks the configured backend chain to answer connection
// and variable lookups.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skeinworks/skein/internal/config"
	skerrors "github.com/skeinworks/skein/internal/errors"
	"github.com/skeinworks/skein/internal/logging"
	"github.com/skeinworks/skein/internal/metrics"
	"github.com/skeinworks/skein/pkg/backend"
	"github.com/skeinworks/skein/pkg/connection"
)

// Resolver searches an ordered chain of backends. A not-found answer from
// one backend falls through to the next; any other error aborts the
// lookup, since a silently skipped auth failure would make a missing
// secret indistinguishable from a broken backend.
type Resolver struct {
	config   *config.Config
	backends map[string]backend.Backend
	logger   *logging.Logger
	mu       sync.RWMutex // Protects backends map for concurrent access
}

// New creates a new resolver instance.
func New(cfg *config.Config) *Resolver {
	return &Resolver{
		config:   cfg,
		backends: make(map[string]backend.Backend),
		logger:   cfg.Logger,
	}
}

// RegisterBackend registers a backend for use by the resolver.
func (r *Resolver) RegisterBackend(name string, b backend.Backend) {
	r.mu.Lock()
	r.backends[name] = b
	r.mu.Unlock()
	r.logger.Debug("Registered backend: %s", name)
}

// Backend returns a registered backend by name.
func (r *Resolver) Backend(name string) (backend.Backend, bool) {
	r.mu.RLock()
	b, exists := r.backends[name]
	r.mu.RUnlock()
	return b, exists
}

// RegisteredBackends returns a copy of the registered backend map.
func (r *Resolver) RegisteredBackends() map[string]backend.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]backend.Backend, len(r.backends))
	for name, b := range r.backends {
		result[name] = b
	}
	return result
}

// SearchOrder returns the chain the resolver walks, restricted to
// registered backends.
func (r *Resolver) SearchOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var order []string
	for _, name := range r.config.ResolvedSearchOrder() {
		if _, ok := r.backends[name]; ok {
			order = append(order, name)
		}
	}
	return order
}

// ValidateBackend validates a single backend with its configured timeout.
func (r *Resolver) ValidateBackend(ctx context.Context, name string) error {
	r.mu.RLock()
	b, exists := r.backends[name]
	r.mu.RUnlock()
	if !exists {
		return skerrors.ConfigError{
			Field:      "backend",
			Value:      name,
			Message:    "backend not registered",
			Suggestion: fmt.Sprintf("Check that backend '%s' is configured correctly", name),
		}
	}

	timeoutMs := r.backendTimeout(name)
	timeoutCtx, cancel := withBackendTimeout(ctx, timeoutMs)
	defer cancel()

	if err := b.Validate(timeoutCtx); err != nil {
		if timeoutErr := isTimeoutError(err, name, timeoutMs); timeoutErr != err {
			return timeoutErr
		}
		return skerrors.BackendError(name, "validate", err)
	}
	return nil
}

func (r *Resolver) backendTimeout(name string) int {
	bc, err := r.config.GetBackend(name)
	if err != nil {
		return config.DefaultTimeoutMs
	}
	return bc.Timeout()
}

func (r *Resolver) noBackendsError() error {
	return skerrors.ConfigError{
		Field:      "backends",
		Message:    "no backends registered",
		Suggestion: "Define at least one backend in skein.yaml",
	}
}

// GetConnValue returns the serialized connection value and the name of the
// backend that answered.
func (r *Resolver) GetConnValue(ctx context.Context, connID string) (string, string, error) {
	order := r.SearchOrder()
	if len(order) == 0 {
		return "", "", r.noBackendsError()
	}

	for _, name := range order {
		b, _ := r.Backend(name)

		timeoutMs := r.backendTimeout(name)
		timeoutCtx, cancel := withBackendTimeout(ctx, timeoutMs)
		start := time.Now()
		value, err := b.GetConnValue(timeoutCtx, connID)
		cancel()
		elapsed := time.Since(start).Seconds()

		if err == nil {
			metrics.ObserveLookup(name, metrics.OutcomeHit, elapsed)
			r.logger.Debug("Resolved connection %q from backend %s", connID, name)
			return value, name, nil
		}
		if isNotFound(err) {
			metrics.ObserveLookup(name, metrics.OutcomeNotFound, elapsed)
			r.logger.Debug("Backend %s has no connection %q, trying next", name, connID)
			continue
		}
		metrics.ObserveLookup(name, metrics.OutcomeError, elapsed)
		if timeoutErr := isTimeoutError(err, name, timeoutMs); timeoutErr != err {
			return "", name, timeoutErr
		}
		return "", name, skerrors.BackendError(name, "connection", err)
	}

	return "", "", backend.NotFoundError{Backend: "search chain", ConnID: connID}
}

// GetConnection returns the parsed connection and the name of the backend
// that answered. Backends that store structured rows keep fields a URI
// round trip would drop, so this walks the chain itself rather than
// parsing GetConnValue's answer.
func (r *Resolver) GetConnection(ctx context.Context, connID string) (*connection.Connection, string, error) {
	order := r.SearchOrder()
	if len(order) == 0 {
		return nil, "", r.noBackendsError()
	}

	for _, name := range order {
		b, _ := r.Backend(name)

		timeoutMs := r.backendTimeout(name)
		timeoutCtx, cancel := withBackendTimeout(ctx, timeoutMs)
		start := time.Now()
		conn, err := b.GetConnection(timeoutCtx, connID)
		cancel()
		elapsed := time.Since(start).Seconds()

		if err == nil {
			metrics.ObserveLookup(name, metrics.OutcomeHit, elapsed)
			r.logger.Debug("Resolved connection %q from backend %s", connID, name)
			return conn, name, nil
		}
		if isNotFound(err) {
			metrics.ObserveLookup(name, metrics.OutcomeNotFound, elapsed)
			continue
		}
		metrics.ObserveLookup(name, metrics.OutcomeError, elapsed)
		if timeoutErr := isTimeoutError(err, name, timeoutMs); timeoutErr != err {
			return nil, name, timeoutErr
		}
		return nil, name, skerrors.BackendError(name, "connection", err)
	}

	return nil, "", backend.NotFoundError{Backend: "search chain", ConnID: connID}
}

// GetVariable returns the variable value and the name of the backend that
// answered.
func (r *Resolver) GetVariable(ctx context.Context, key string) (string, string, error) {
	order := r.SearchOrder()
	if len(order) == 0 {
		return "", "", r.noBackendsError()
	}

	for _, name := range order {
		b, _ := r.Backend(name)

		timeoutMs := r.backendTimeout(name)
		timeoutCtx, cancel := withBackendTimeout(ctx, timeoutMs)
		start := time.Now()
		value, err := b.GetVariable(timeoutCtx, key)
		cancel()
		elapsed := time.Since(start).Seconds()

		if err == nil {
			metrics.ObserveLookup(name, metrics.OutcomeHit, elapsed)
			r.logger.Debug("Resolved variable %q from backend %s", key, name)
			return value, name, nil
		}
		if isNotFound(err) {
			metrics.ObserveLookup(name, metrics.OutcomeNotFound, elapsed)
			continue
		}
		metrics.ObserveLookup(name, metrics.OutcomeError, elapsed)
		if timeoutErr := isTimeoutError(err, name, timeoutMs); timeoutErr != err {
			return "", name, timeoutErr
		}
		return "", name, skerrors.BackendError(name, "variable", err)
	}

	return "", "", backend.NotFoundError{Backend: "search chain", ConnID: key}
}

func isNotFound(err error) bool {
	var notFound backend.NotFoundError
	return errors.As(err, &notFound)
}

// ResolvedConnection is one answer from ResolveAll.
type ResolvedConnection struct {
	ConnID string
	Value  string
	Source string
	Error  error
}

// ResolveAll fetches several connections concurrently. Results are keyed
// by conn id; individual failures land in the result's Error field and are
// summarized in the returned error.
func (r *Resolver) ResolveAll(ctx context.Context, connIDs []string) (map[string]ResolvedConnection, error) {
	result := make(map[string]ResolvedConnection, len(connIDs))
	resultMutex := &sync.Mutex{}

	var wg sync.WaitGroup
	errorChan := make(chan error, len(connIDs))

	// Limit concurrent backend calls so a long conn id list does not
	// overwhelm rate-limited cloud APIs.
	maxConcurrent := 10
	semaphore := make(chan struct{}, maxConcurrent)

	for _, connID := range connIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			value, source, err := r.GetConnValue(ctx, id)
			resolved := ResolvedConnection{ConnID: id, Value: value, Source: source, Error: err}

			resultMutex.Lock()
			result[id] = resolved
			resultMutex.Unlock()

			if err != nil {
				errorChan <- skerrors.UserError{
					Message:    fmt.Sprintf("Failed to resolve connection '%s'", id),
					Details:    err.Error(),
					Suggestion: "Check that the backend is configured correctly and the connection exists",
					Err:        err,
				}
			}
		}(connID)
	}

	wg.Wait()
	close(errorChan)

	var errs []error
	for err := range errorChan {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		if len(errs) == 1 {
			return result, errs[0]
		}
		return result, skerrors.UserError{
			Message:    fmt.Sprintf("Failed to resolve %d connections", len(errs)),
			Details:    fmt.Sprintf("%v", errs),
			Suggestion: "Fix the errors above and try again. Use 'skein doctor' to check backend connectivity",
		}
	}

	return result, nil
}

// PlannedLookup describes the chain one conn id would be searched through.
type PlannedLookup struct {
	ConnID string
	Chain  []string
	Error  error
}

// PlanResult is the outcome of planning lookups without fetching values.
type PlanResult struct {
	Lookups []PlannedLookup
	Errors  []error
}

// Plan shows how conn ids would be resolved without contacting any
// backend.
func (r *Resolver) Plan(connIDs []string) *PlanResult {
	order := r.SearchOrder()

	result := &PlanResult{
		Lookups: make([]PlannedLookup, 0, len(connIDs)),
	}
	for _, connID := range connIDs {
		planned := PlannedLookup{ConnID: connID, Chain: order}
		if len(order) == 0 {
			planned.Error = fmt.Errorf("no backends registered to resolve '%s'", connID)
			result.Errors = append(result.Errors, planned.Error)
		}
		result.Lookups = append(result.Lookups, planned)
	}
	return result
}
