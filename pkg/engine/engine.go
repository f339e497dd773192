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

// Package engine wires the discovery pipeline together: scheduler to probe
// executor to device tracker to scorer to alert dispatcher, one loop per
// tenant.
package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Pmvita/SecureNet-sub007/pkg/alerting"
	"github.com/Pmvita/SecureNet-sub007/pkg/baseline"
	"github.com/Pmvita/SecureNet-sub007/pkg/config"
	"github.com/Pmvita/SecureNet-sub007/pkg/logger"
	"github.com/Pmvita/SecureNet-sub007/pkg/models"
	"github.com/Pmvita/SecureNet-sub007/pkg/scheduler"
	"github.com/Pmvita/SecureNet-sub007/pkg/scorer"
	"github.com/Pmvita/SecureNet-sub007/pkg/tracker"
)

// Engine runs the discovery and threat-scoring pipeline for every
// configured tenant. One tenant's failing cycle degrades that tenant alone.
type Engine struct {
	cfg        *config.EngineConfig
	scheduler  *scheduler.Scheduler
	tracker    *tracker.Tracker
	baselines  *baseline.Store
	scorer     *scorer.Scorer
	dispatcher *alerting.Dispatcher
	logger     logger.Logger

	mu      sync.RWMutex
	tenants map[string]*config.TenantConfig

	done     chan struct{}
	stopOnce sync.Once
}

// New assembles an engine from its components.
func New(
	cfg *config.EngineConfig,
	sched *scheduler.Scheduler,
	track *tracker.Tracker,
	baselines *baseline.Store,
	score *scorer.Scorer,
	dispatch *alerting.Dispatcher,
	tenants []*config.TenantConfig,
	log logger.Logger,
) *Engine {
	byID := make(map[string]*config.TenantConfig, len(tenants))
	for _, t := range tenants {
		byID[t.TenantID] = t
	}

	return &Engine{
		cfg:        cfg,
		scheduler:  sched,
		tracker:    track,
		baselines:  baselines,
		scorer:     score,
		dispatcher: dispatch,
		tenants:    byID,
		logger:     log,
		done:       make(chan struct{}),
	}
}

// Transitions exposes the device transition stream for the dashboard layer.
func (e *Engine) Transitions() <-chan models.DeviceTransition {
	return e.tracker.Transitions()
}

// Start runs one scan loop per tenant and blocks until the context is done
// or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.RLock()
	ids := make([]string, 0, len(e.tenants))

	for id := range e.tenants {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	e.logger.Info().Int("tenants", len(ids)).Msg("Starting discovery engine")

	g, ctx := errgroup.WithContext(ctx)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			e.runTenantLoop(ctx, id)
			return nil
		})
	}

	return g.Wait()
}

// Stop signals every tenant loop to exit after its current cycle. Safe to
// call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
	})
}

func (e *Engine) runTenantLoop(ctx context.Context, tenantID string) {
	tenant := e.tenant(tenantID)
	if tenant == nil {
		return
	}

	e.logger.Info().
		Str("tenant_id", tenantID).
		Dur("interval", tenant.ScanInterval).
		Msg("Starting tenant scan loop")

	e.runCycle(ctx, tenant)

	ticker := time.NewTicker(tenant.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			// Config may have been swapped between cycles.
			tenant = e.tenant(tenantID)
			if tenant == nil {
				return
			}

			e.runCycle(ctx, tenant)
		}
	}
}

// runCycle executes one full scan cycle for a tenant. Errors degrade to
// partial results; nothing here is fatal to the process.
func (e *Engine) runCycle(ctx context.Context, tenant *config.TenantConfig) {
	cycleCtx, cancel := context.WithTimeout(ctx, e.cfg.CycleTimeout)
	defer cancel()

	e.tracker.BeginCycle(tenant.TenantID)

	results, cycle, err := e.scheduler.RunCycle(cycleCtx, tenant)
	if err != nil {
		e.logger.Error().Err(err).Str("tenant_id", tenant.TenantID).Msg("Scan cycle failed to start")
		return
	}

	seen := make(map[string]struct{})

	for result := range results {
		deviceID, transition, finding := e.tracker.Apply(cycleCtx, &result, tenant.PortWindowCycles)

		if deviceID != "" {
			seen[deviceID] = struct{}{}
		}

		if finding != nil {
			e.dispatcher.Submit(cycleCtx, finding, tenant)
		}

		if transition != nil {
			e.logger.Debug().
				Str("device_id", transition.DeviceID).
				Str("from", string(transition.From)).
				Str("to", string(transition.To)).
				Msg("Device transition")
		}
	}

	e.tracker.CompleteCycle(ctx, tenant.TenantID, tenant.SilenceCycles)

	// Score every device seen this cycle on its current exposure surface.
	for deviceID := range seen {
		device, ok := e.tracker.GetDevice(deviceID)
		if !ok {
			continue
		}

		if f := e.scorer.Score(ctx, &device, tenant, nil); f != nil {
			e.dispatcher.Submit(ctx, f, tenant)
		}
	}

	e.dispatcher.ReleaseWithheld(ctx, tenant)
	e.dispatcher.Prune()

	e.logger.Info().
		Str("tenant_id", tenant.TenantID).
		Str("cycle_id", cycle.ID).
		Int("tasks", cycle.Tasks).
		Int("devices_seen", len(seen)).
		Dur("elapsed", time.Since(cycle.Started)).
		Msg("Scan cycle complete")
}

// ObserveTraffic ingests one passive traffic sample: it updates the rolling
// baseline and immediately scores the device so a sharp deviation raises an
// alert within the current cycle.
func (e *Engine) ObserveTraffic(ctx context.Context, tenantID string, sample models.TrafficSample) {
	tenant := e.tenant(tenantID)
	if tenant == nil {
		return
	}

	// Score against the baseline as it stood before this sample.
	device, ok := e.tracker.GetDevice(sample.DeviceID)

	if ok {
		if f := e.scorer.Score(ctx, &device, tenant, &sample); f != nil {
			e.dispatcher.Submit(ctx, f, tenant)
		}
	}

	e.baselines.Observe(sample.DeviceID, sample)
}

// Summary reports a tenant's current discovery state.
func (e *Engine) Summary(tenantID string) *tracker.TenantSummary {
	return e.tracker.Summary(tenantID)
}

func (e *Engine) tenant(tenantID string) *config.TenantConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.tenants[tenantID]
}
