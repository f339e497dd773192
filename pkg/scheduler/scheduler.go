/*
 * Copyright 2025 SecureNet, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package scheduler partitions tenant targets into probe tasks and drives
// them through a bounded worker pool.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/Pmvita/SecureNet-sub007/pkg/config"
	"github.com/Pmvita/SecureNet-sub007/pkg/logger"
	"github.com/Pmvita/SecureNet-sub007/pkg/metrics"
	"github.com/Pmvita/SecureNet-sub007/pkg/models"
	"github.com/Pmvita/SecureNet-sub007/pkg/probe"
)

const (
	defaultWorkChDepth = 2 // multiplier over worker count, teacher-style
	maxWorkersPerCycle = 256
)

// Executor is the probe contract the scheduler fans out to.
type Executor interface {
	Probe(ctx context.Context, target models.ProbeTarget) models.ProbeResult
}

// Scheduler throttles probe tasks under two interacting quotas: a global cap
// on total in-flight probes shared by every tenant, and a per-tenant cap
// enforced per cycle so no tenant can starve the others.
type Scheduler struct {
	executor Executor
	global   *semaphore.Weighted
	limiter  *rate.Limiter
	logger   logger.Logger
}

// New creates a scheduler. globalMax bounds in-flight probes across all
// tenants; ratePerSec smooths probe issuance to protect the host's own
// network stack.
func New(executor Executor, globalMax int64, ratePerSec float64, log logger.Logger) *Scheduler {
	if globalMax <= 0 {
		globalMax = 1024
	}

	if ratePerSec <= 0 {
		ratePerSec = 500
	}

	return &Scheduler{
		executor: executor,
		global:   semaphore.NewWeighted(globalMax),
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec)),
		logger:   log,
	}
}

// Cycle is one tenant scan cycle in flight.
type Cycle struct {
	ID       string
	TenantID string
	Started  time.Time
	Tasks    int
}

// BuildTasks expands a tenant's targets into individual probe tasks. Ranges
// were bounds-checked at config time, so expansion here cannot exceed the
// tenant's device quota. Passive targets produce no active probes.
func BuildTasks(tenant *config.TenantConfig) ([]models.ProbeTarget, error) {
	var tasks []models.ProbeTarget

	for i := range tenant.Targets {
		target := &tenant.Targets[i]

		if target.Method == models.DiscoveryPassive {
			continue
		}

		hosts, err := probe.ExpandCIDR(target.Network)
		if err != nil {
			return nil, err
		}

		for _, host := range hosts {
			if target.Method != models.DiscoveryARPOnly {
				tasks = append(tasks, models.ProbeTarget{
					TenantID: tenant.TenantID,
					Host:     host,
					Kind:     models.ProbePing,
				})
			}

			kind := models.ProbePort
			if target.GrabBanner {
				kind = models.ProbeBanner
			}

			for _, port := range target.Ports {
				tasks = append(tasks, models.ProbeTarget{
					TenantID: tenant.TenantID,
					Host:     host,
					Port:     port,
					Kind:     kind,
				})
			}
		}
	}

	return tasks, nil
}

// RunCycle starts one scan cycle for the tenant and returns the result
// stream. The stream closes when every task has finished or the context is
// done; cancellation abandons in-flight probes but keeps partial results.
func (s *Scheduler) RunCycle(ctx context.Context, tenant *config.TenantConfig) (<-chan models.ProbeResult, *Cycle, error) {
	tasks, err := BuildTasks(tenant)
	if err != nil {
		return nil, nil, err
	}

	cycle := &Cycle{
		ID:       uuid.New().String(),
		TenantID: tenant.TenantID,
		Started:  time.Now(),
		Tasks:    len(tasks),
	}

	resultCh := make(chan models.ProbeResult, len(tasks))

	if len(tasks) == 0 {
		close(resultCh)
		return resultCh, cycle, nil
	}

	workers := int(tenant.Concurrency)
	if workers > len(tasks) {
		workers = len(tasks)
	}

	if workers > maxWorkersPerCycle {
		workers = maxWorkersPerCycle
	}

	workCh := make(chan models.ProbeTarget, workers*defaultWorkChDepth)

	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			s.worker(ctx, tenant, cycle, workCh, resultCh)
		}()
	}

	go func() {
		defer close(workCh)

		for i, t := range tasks {
			select {
			case <-ctx.Done():
				// Tasks never handed to a worker still count as dropped.
				s.dropTasks(tenant, len(tasks)-i)
				return
			case workCh <- t:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)

		s.logger.Debug().
			Str("cycle_id", cycle.ID).
			Str("tenant_id", tenant.TenantID).
			Int("tasks", len(tasks)).
			Dur("elapsed", time.Since(cycle.Started)).
			Msg("Scan cycle drained")

		metrics.CycleDuration.WithLabelValues(tenant.TenantID).
			Observe(time.Since(cycle.Started).Seconds())
	}()

	return resultCh, cycle, nil
}

func (s *Scheduler) worker(
	ctx context.Context,
	tenant *config.TenantConfig,
	cycle *Cycle,
	workCh <-chan models.ProbeTarget,
	resultCh chan<- models.ProbeResult,
) {
	for target := range workCh {
		if err := s.limiter.Wait(ctx); err != nil {
			s.drainDropped(tenant, workCh)
			return
		}

		if err := s.global.Acquire(ctx, 1); err != nil {
			// Quota wait outlived the cycle; every undone task is counted,
			// not silently starved.
			s.drainDropped(tenant, workCh)
			return
		}

		metrics.ProbesInFlight.Inc()

		result := s.probeWithRetry(ctx, tenant, target)
		result.CycleID = cycle.ID

		metrics.ProbesInFlight.Dec()
		s.global.Release(1)

		metrics.ProbesTotal.WithLabelValues(tenant.TenantID, string(result.Outcome)).Inc()

		// resultCh is buffered to the task count; the send never blocks.
		resultCh <- result
	}
}

func (s *Scheduler) dropTasks(tenant *config.TenantConfig, n int) {
	if n > 0 {
		metrics.QuotaExceeded.WithLabelValues(tenant.TenantID).Add(float64(n))
	}
}

// drainDropped accounts for the task whose quota wait just failed plus every
// task still queued behind it, so executed probes and quota drops always sum
// to the cycle's task count.
func (s *Scheduler) drainDropped(tenant *config.TenantConfig, workCh <-chan models.ProbeTarget) {
	dropped := 1

	for range workCh {
		dropped++
	}

	s.dropTasks(tenant, dropped)
}

// probeWithRetry retries transient outcomes (timeout, error) with exponential
// backoff per the tenant's policy. Refusal is a positive signal and is never
// retried. The retry budget resets every cycle to bound worst-case duration.
func (s *Scheduler) probeWithRetry(
	ctx context.Context, tenant *config.TenantConfig, target models.ProbeTarget,
) models.ProbeResult {
	bo := tenant.Retry.Backoff()

	attempts := 0

	for {
		attempts++

		result := s.executor.Probe(ctx, target)
		result.Attempts = attempts

		if !isTransient(result.Outcome) || attempts > tenant.Retry.MaxAttempts {
			return result
		}

		wait := bo.NextBackOff()

		s.logger.Debug().
			Str("host", target.Host).
			Str("outcome", string(result.Outcome)).
			Int("attempt", attempts).
			Dur("backoff", wait).
			Msg("Retrying transient probe failure")

		select {
		case <-ctx.Done():
			return result
		case <-time.After(wait):
		}
	}
}

func isTransient(outcome models.ProbeOutcome) bool {
	return outcome == models.OutcomeTimeout || outcome == models.OutcomeError
}
