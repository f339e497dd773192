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

// Package alerting converts findings into deduplicated alerts and pushes
// them to delivery channels.
package alerting

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Pmvita/SecureNet-sub007/pkg/config"
	"github.com/Pmvita/SecureNet-sub007/pkg/logger"
	"github.com/Pmvita/SecureNet-sub007/pkg/metrics"
	"github.com/Pmvita/SecureNet-sub007/pkg/models"
)

// Channel is one alert delivery target. Delivery is at-least-once and
// per-channel independent: one channel's failure never blocks another.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, alert *models.Alert) error
}

// activeAlert is a dispatched (or withheld) alert inside its suppression
// window.
type activeAlert struct {
	alert     models.Alert
	windowEnd time.Time
	withheld  bool
}

// Dispatcher deduplicates findings into alerts. At most one active alert
// exists per suppression key within the configured window; repeat findings
// update the evidence count instead of redispatching.
type Dispatcher struct {
	mu       sync.Mutex
	active   map[uint64]*activeAlert
	channels []Channel
	logger   logger.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher pushing to the given channels.
func NewDispatcher(channels []Channel, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		active:   make(map[uint64]*activeAlert),
		channels: channels,
		logger:   log,
		now:      time.Now,
	}
}

// SuppressionKey identifies the bucket repeated findings merge into.
func SuppressionKey(tenantID, deviceID string, category models.FindingCategory, severity models.Severity) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tenantID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(deviceID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(category))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(severity))

	return h.Sum64()
}

// Submit evaluates one finding. It returns true when a fresh alert was
// created (and, quiet hours permitting, dispatched); false when the finding
// merged into an existing alert's evidence.
func (d *Dispatcher) Submit(ctx context.Context, finding *models.Finding, tenant *config.TenantConfig) bool {
	key := SuppressionKey(finding.TenantID, finding.DeviceID, finding.Category, finding.Severity)
	now := d.now()

	d.mu.Lock()

	if entry, ok := d.active[key]; ok && now.Before(entry.windowEnd) {
		entry.alert.EvidenceCount++
		entry.alert.LastSeen = finding.Timestamp
		entry.alert.Score = finding.Score

		d.mu.Unlock()

		metrics.AlertsSuppressed.WithLabelValues(finding.TenantID).Inc()

		return false
	}

	alert := models.Alert{
		AlertID:       uuid.New().String(),
		TenantID:      finding.TenantID,
		DeviceID:      finding.DeviceID,
		Category:      finding.Category,
		Severity:      finding.Severity,
		Score:         finding.Score,
		SuppressKey:   key,
		EvidenceCount: 1,
		FirstSeen:     finding.Timestamp,
		LastSeen:      finding.Timestamp,
		Evidence:      finding.Evidence,
	}

	withheld := tenant.Maintenance || tenant.QuietHours.Contains(now)

	entry := &activeAlert{
		alert:     alert,
		windowEnd: now.Add(tenant.DedupWindow),
		withheld:  withheld,
	}
	d.active[key] = entry

	d.mu.Unlock()

	if withheld {
		// Evaluation continues during quiet hours; only dispatch waits.
		d.logger.Debug().
			Str("alert_id", alert.AlertID).
			Str("tenant_id", alert.TenantID).
			Msg("Alert withheld by quiet hours or maintenance mode")

		return true
	}

	d.dispatch(ctx, key)

	return true
}

// ReleaseWithheld dispatches withheld alerts after quiet hours or
// maintenance end. Every withheld alert is delivered with its accumulated
// evidence; the suppression window only decides whether the entry keeps
// deduplicating afterwards or is dropped once delivered.
func (d *Dispatcher) ReleaseWithheld(ctx context.Context, tenant *config.TenantConfig) int {
	now := d.now()

	if tenant.Maintenance || tenant.QuietHours.Contains(now) {
		return 0
	}

	d.mu.Lock()

	var release, expired []uint64

	for key, entry := range d.active {
		if entry.alert.TenantID != tenant.TenantID || !entry.withheld {
			continue
		}

		entry.withheld = false
		release = append(release, key)

		if !now.Before(entry.windowEnd) {
			expired = append(expired, key)
		}
	}

	d.mu.Unlock()

	for _, key := range release {
		d.dispatch(ctx, key)
	}

	if len(expired) > 0 {
		d.mu.Lock()

		for _, key := range expired {
			delete(d.active, key)
		}

		d.mu.Unlock()
	}

	return len(release)
}

// dispatch pushes the alert to every channel, fire-and-forget. A channel
// failure is recorded and logged but never rolls back delivery elsewhere.
func (d *Dispatcher) dispatch(ctx context.Context, key uint64) {
	d.mu.Lock()

	entry, ok := d.active[key]
	if !ok {
		d.mu.Unlock()
		return
	}

	entry.alert.DispatchedAt = d.now()
	alert := entry.alert

	d.mu.Unlock()

	metrics.AlertsDispatched.WithLabelValues(alert.TenantID, string(alert.Severity)).Inc()

	// Delivery outlives the scan cycle that produced the finding; a cycle
	// timeout must not abort an in-flight webhook retry.
	ctx = context.WithoutCancel(ctx)

	for _, ch := range d.channels {
		go func(ch Channel) {
			if err := ch.Deliver(ctx, &alert); err != nil {
				metrics.ChannelFailures.WithLabelValues(ch.Name()).Inc()
				d.logger.Error().Err(err).
					Str("channel", ch.Name()).
					Str("alert_id", alert.AlertID).
					Msg("Alert delivery failed")
			}
		}(ch)
	}
}

// ActiveAlert returns a copy of the live alert for a suppression key, used
// by tests and diagnostics.
func (d *Dispatcher) ActiveAlert(key uint64) (models.Alert, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.active[key]
	if !ok {
		return models.Alert{}, false
	}

	return entry.alert, true
}

// Prune drops expired suppression entries. Called between scan cycles to
// keep the dedup table bounded. Withheld entries are left for
// ReleaseWithheld, which owns their delivery.
func (d *Dispatcher) Prune() int {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0

	for key, entry := range d.active {
		if entry.withheld {
			continue
		}

		if now.After(entry.windowEnd) {
			delete(d.active, key)
			removed++
		}
	}

	return removed
}
