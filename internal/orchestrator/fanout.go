// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/fleetsupervisor/internal/logging"
	"github.com/tomtom215/fleetsupervisor/internal/metrics"
	"github.com/tomtom215/fleetsupervisor/internal/sigmask"
)

// fanOut runs fn for each named service concurrently, bounded by a
// semaphore sized to MaxConcurrency (or len(names), matching spec.md
// §4.7's "worker pool sized to the number of services"). A missing
// service name yields a VerbError result rather than being silently
// skipped. Results are collected regardless of individual failure: one
// service's error never cancels its siblings. SIGINT arriving during the
// fan-out is held and redelivered once every worker has returned (spec.md
// §4.7, §9). Every worker's context carries an operation ID shared across
// the whole fan-out plus its own service name, so per-service log lines
// from one invocation of a verb can be correlated.
func (o *Orchestrator) fanOut(ctx context.Context, verb string, names []string, fn func(context.Context, *registeredService) error) []VerbResult {
	start := time.Now()
	defer func() {
		metrics.OrchestratorFanOutDuration.WithLabelValues(verb).Observe(time.Since(start).Seconds())
	}()

	ctx = logging.ContextWithNewOperationID(ctx)
	restoreSig := sigmask.Ignore()
	defer func() {
		if restoreSig() {
			sigmask.Reraise()
		}
	}()

	limit := o.cfg.MaxConcurrency
	if limit <= 0 {
		limit = int64(len(names))
	}
	if limit <= 0 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)

	results := make([]VerbResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		i, name := i, name
		rs, ok := o.lookup(name)
		if !ok {
			results[i] = VerbResult{Service: name, State: VerbError, Err: fmt.Errorf("unknown service %q", name)}
			continue
		}

		wg.Add(1)
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = VerbResult{Service: name, State: VerbError, Err: err}
			wg.Done()
			continue
		}
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = o.callVerb(logging.ContextWithServiceName(ctx, name), verb, rs, fn)
		}()
	}
	wg.Wait()
	return results
}

// callVerb invokes fn for a single service under the configured per-call
// timeout, recovers a panic as an error result (the Go analogue of
// spec.md §4.7's SystemExit/TimeoutAlarm/exception handling, since there
// is no process-title/SIGALRM equivalent inside one Go process), and
// records the outcome to metrics.
func (o *Orchestrator) callVerb(ctx context.Context, verb string, rs *registeredService, fn func(context.Context, *registeredService) error) (result VerbResult) {
	start := time.Now()
	result.Service = rs.config.Name

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.PerCallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in %s verb for %s: %v", verb, rs.config.Name, r)
			}
		}()
		done <- fn(callCtx, rs)
	}()

	select {
	case err := <-done:
		result.Elapsed = time.Since(start)
		if err != nil {
			result.State = VerbError
			result.Err = err
			logging.CtxErr(ctx, err).Str("verb", verb).Msg("verb call failed")
		} else {
			result.State = VerbOK
		}
	case <-callCtx.Done():
		result.Elapsed = time.Since(start)
		result.State = VerbTimeout
		result.Err = callCtx.Err()
		logging.CtxWarn(ctx).Str("verb", verb).Msg("verb call timed out")
	}

	metrics.ObserveOrchestratorVerb(verb, rs.config.Name, result.State.String(), result.Elapsed)
	return result
}

// fanOutStatus is fanOut specialized for the status probe: each service's
// probe runs behind its own circuit breaker, so a service whose probe has
// recently failed repeatedly is reported VerbUnknown immediately instead
// of being re-invoked (and potentially hanging the whole fan-out on a
// wedged probe) until the breaker's cooldown elapses. SIGINT masking
// applies here too, matching status's treatment as an ordinary verb for
// fan-out purposes.
func (o *Orchestrator) fanOutStatus(ctx context.Context, names []string) []VerbResult {
	start := time.Now()
	defer func() {
		metrics.OrchestratorFanOutDuration.WithLabelValues("status").Observe(time.Since(start).Seconds())
	}()

	ctx = logging.ContextWithNewOperationID(ctx)
	restoreSig := sigmask.Ignore()
	defer func() {
		if restoreSig() {
			sigmask.Reraise()
		}
	}()

	limit := o.cfg.MaxConcurrency
	if limit <= 0 {
		limit = int64(len(names))
	}
	if limit <= 0 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)

	results := make([]VerbResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		i, name := i, name
		rs, ok := o.lookup(name)
		if !ok {
			results[i] = VerbResult{Service: name, State: VerbError, Err: fmt.Errorf("unknown service %q", name)}
			continue
		}

		wg.Add(1)
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = VerbResult{Service: name, State: VerbError, Err: err}
			wg.Done()
			continue
		}
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = o.callStatusThroughBreaker(logging.ContextWithServiceName(ctx, name), rs)
		}()
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) breakerFor(service string) *gobreaker.CircuitBreaker[VerbState] {
	o.breakersMu.Lock()
	defer o.breakersMu.Unlock()
	if cb, ok := o.breakers[service]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[VerbState](gobreaker.Settings{
		Name:        "status:" + service,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	o.breakers[service] = cb
	return cb
}

func (o *Orchestrator) callStatusThroughBreaker(ctx context.Context, rs *registeredService) VerbResult {
	start := time.Now()
	cb := o.breakerFor(rs.config.Name)

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.PerCallTimeout)
	defer cancel()

	state, err := cb.Execute(func() (VerbState, error) {
		st, probeErr := rs.impl.Status(callCtx)
		if probeErr != nil {
			return VerbError, probeErr
		}
		if st == VerbError {
			return st, fmt.Errorf("service %s reported error state", rs.config.Name)
		}
		return st, nil
	})

	elapsed := time.Since(start)
	result := VerbResult{Service: rs.config.Name, Elapsed: elapsed}
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			result.State = VerbUnknown
			logging.CtxWarn(ctx).Msg("status probe skipped, breaker open")
		} else if callCtx.Err() != nil {
			result.State = VerbTimeout
			logging.CtxWarn(ctx).Msg("status probe timed out")
		} else {
			result.State = VerbError
			logging.CtxErr(ctx, err).Msg("status probe failed")
		}
		result.Err = err
	} else {
		result.State = state
	}

	metrics.ObserveOrchestratorVerb("status", rs.config.Name, result.State.String(), elapsed)
	return result
}
