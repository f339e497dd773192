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

// Package tracker maintains the authoritative per-device state from
// accumulated probe results.
package tracker

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/Pmvita/SecureNet-sub007/pkg/logger"
	"github.com/Pmvita/SecureNet-sub007/pkg/metrics"
	"github.com/Pmvita/SecureNet-sub007/pkg/models"
)

const (
	defaultShardCount = 16
	// ambiguityWindow bounds IP-only identity reuse: an IP that shows up
	// with a different MAC inside this window is a conflict, not a rebind.
	ambiguityWindow = 24 * time.Hour
)

// DeviceUpserter hands device records to the external persistence
// collaborator. Failures are logged, never fatal.
type DeviceUpserter interface {
	UpsertDevice(ctx context.Context, device *models.Device) error
}

// deviceRecord wraps the durable device with tracking bookkeeping.
type deviceRecord struct {
	device      models.Device
	portSeen    map[int]uint64 // port -> last cycle number observed open
	lastSuccess uint64         // cycle number of last successful probe
	missed      int            // consecutive silent cycles
	seenInCycle bool
}

type shard struct {
	mu      sync.RWMutex
	devices map[string]*deviceRecord
}

// tenantIndex resolves probe addresses to device IDs for one tenant.
// Precedence: MAC > IP+hostname > IP-only.
type tenantIndex struct {
	mu       sync.RWMutex
	byMAC    map[string]string
	byIPHost map[string]string
	byIP     map[string]string
	cycle    uint64
	lastScan time.Time
}

// Tracker is the partitioned device registry. Devices shard by device ID so
// updates to different devices never contend; updates to the same device are
// serialized by its shard lock.
type Tracker struct {
	shards    []*shard
	indexes   sync.Map // tenantID -> *tenantIndex
	upserter  DeviceUpserter
	logger    logger.Logger
	transitCh chan models.DeviceTransition
}

// New creates a tracker. upserter may be nil when persistence is disabled.
func New(upserter DeviceUpserter, log logger.Logger) *Tracker {
	shards := make([]*shard, defaultShardCount)
	for i := range shards {
		shards[i] = &shard{devices: make(map[string]*deviceRecord)}
	}

	return &Tracker{
		shards:    shards,
		upserter:  upserter,
		logger:    log,
		transitCh: make(chan models.DeviceTransition, 256),
	}
}

// Transitions exposes the event stream consumed by the baseline store and
// the dashboard layer.
func (t *Tracker) Transitions() <-chan models.DeviceTransition {
	return t.transitCh
}

func (t *Tracker) shardFor(deviceID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))

	return t.shards[int(h.Sum32())%len(t.shards)]
}

func (t *Tracker) index(tenantID string) *tenantIndex {
	v, _ := t.indexes.LoadOrStore(tenantID, &tenantIndex{
		byMAC:    make(map[string]string),
		byIPHost: make(map[string]string),
		byIP:     make(map[string]string),
	})

	return v.(*tenantIndex)
}

// BeginCycle marks the start of a tenant scan cycle and returns its ordinal.
func (t *Tracker) BeginCycle(tenantID string) uint64 {
	idx := t.index(tenantID)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.cycle++
	idx.lastScan = time.Now()

	return idx.cycle
}

// Apply folds one probe result into the registry. It returns the resolved
// device ID, the transition the result caused, if any, and an
// identity-conflict finding when an IP was reused by a different MAC inside
// the ambiguity window.
func (t *Tracker) Apply(ctx context.Context, result *models.ProbeResult, portWindowCycles int) (string, *models.DeviceTransition, *models.Finding) {
	if !result.Available() {
		// Absence is judged at cycle completion, never on a single miss.
		return "", nil, nil
	}

	deviceID, conflict := t.resolve(result)

	idx := t.index(result.Target.TenantID)
	idx.mu.RLock()
	cycle := idx.cycle
	idx.mu.RUnlock()

	sh := t.shardFor(deviceID)
	sh.mu.Lock()

	rec, ok := sh.devices[deviceID]
	if !ok {
		rec = t.newRecord(deviceID, result)
		sh.devices[deviceID] = rec
	}

	transition := t.applyLocked(rec, result, cycle, portWindowCycles)
	device := rec.device

	sh.mu.Unlock()

	if transition != nil {
		t.emit(ctx, *transition, &device)
	}

	var finding *models.Finding
	if conflict != nil {
		finding = conflict
		t.logger.Warn().
			Str("tenant_id", finding.TenantID).
			Str("ip", result.Target.Host).
			Msg("Device identity conflict: IP reused by a different MAC inside ambiguity window")
	}

	return deviceID, transition, finding
}

// resolve maps a probe result to a stable device identity. MAC wins over
// IP+hostname, which wins over bare IP. An IP rebound to a new MAC within
// the ambiguity window splits history and surfaces a conflict finding.
func (t *Tracker) resolve(result *models.ProbeResult) (string, *models.Finding) {
	idx := t.index(result.Target.TenantID)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	ip := result.Target.Host

	if result.MAC != "" {
		if id, ok := idx.byMAC[result.MAC]; ok {
			idx.byIP[ip] = id
			if result.Hostname != "" {
				idx.byIPHost[ip+"|"+result.Hostname] = id
			}

			return id, nil
		}
	}

	if result.Hostname != "" {
		if id, ok := idx.byIPHost[ip+"|"+result.Hostname]; ok {
			if conflict := t.checkMACConflict(idx, id, result); conflict != nil {
				return t.bindNew(idx, result), conflict
			}

			t.learnIdentity(idx, id, result)

			return id, nil
		}
	}

	if id, ok := idx.byIP[ip]; ok {
		if conflict := t.checkMACConflict(idx, id, result); conflict != nil {
			return t.bindNew(idx, result), conflict
		}

		t.learnIdentity(idx, id, result)

		return id, nil
	}

	return t.bindNew(idx, result), nil
}

// checkMACConflict detects an IP that maps to an existing device whose MAC
// differs from the probed one. Inside the ambiguity window that is a
// conflict; outside it the IP is silently rebound (DHCP churn).
func (t *Tracker) checkMACConflict(idx *tenantIndex, deviceID string, result *models.ProbeResult) *models.Finding {
	if result.MAC == "" {
		return nil
	}

	sh := t.shardFor(deviceID)
	sh.mu.RLock()
	rec, ok := sh.devices[deviceID]

	var existingMAC string

	var lastSeen time.Time

	if ok {
		existingMAC = rec.device.MAC
		lastSeen = rec.device.LastSeen
	}
	sh.mu.RUnlock()

	if !ok || existingMAC == "" || existingMAC == result.MAC {
		return nil
	}

	if time.Since(lastSeen) >= ambiguityWindow {
		return nil
	}

	return &models.Finding{
		TenantID:  result.Target.TenantID,
		DeviceID:  deviceID,
		Category:  models.CategoryIdentityConflict,
		Score:     15,
		Severity:  models.SeverityLow,
		Timestamp: result.Timestamp,
		Evidence: map[string]string{
			"ip":           result.Target.Host,
			"existing_mac": existingMAC,
			"probed_mac":   result.MAC,
		},
	}
}

func (t *Tracker) learnIdentity(idx *tenantIndex, deviceID string, result *models.ProbeResult) {
	if result.MAC != "" {
		idx.byMAC[result.MAC] = deviceID
	}

	if result.Hostname != "" {
		idx.byIPHost[result.Target.Host+"|"+result.Hostname] = deviceID
	}
}

// bindNew allocates a device identity for the result and points every
// resolvable key at it.
func (t *Tracker) bindNew(idx *tenantIndex, result *models.ProbeResult) string {
	tenant := result.Target.TenantID
	ip := result.Target.Host

	var id string
	if result.MAC != "" {
		id = fmt.Sprintf("%s:%s", tenant, result.MAC)
	} else {
		id = fmt.Sprintf("%s:%s", tenant, ip)
	}

	idx.byIP[ip] = id

	if result.MAC != "" {
		idx.byMAC[result.MAC] = id
	}

	if result.Hostname != "" {
		idx.byIPHost[ip+"|"+result.Hostname] = id
	}

	return id
}

func (t *Tracker) newRecord(deviceID string, result *models.ProbeResult) *deviceRecord {
	return &deviceRecord{
		device: models.Device{
			DeviceID:     deviceID,
			TenantID:     result.Target.TenantID,
			IP:           result.Target.Host,
			MAC:          result.MAC,
			Hostname:     result.Hostname,
			Status:       models.StatusUnknown,
			FirstSeen:    result.Timestamp,
			OpenServices: make(map[int]string),
		},
		portSeen: make(map[int]uint64),
	}
}

// applyLocked runs the status machine for one successful probe. Caller holds
// the shard lock.
func (t *Tracker) applyLocked(rec *deviceRecord, result *models.ProbeResult, cycle uint64, portWindowCycles int) *models.DeviceTransition {
	dev := &rec.device
	dev.LastSeen = result.Timestamp
	dev.IP = result.Target.Host

	if result.MAC != "" {
		dev.MAC = result.MAC
	}

	if result.Hostname != "" {
		dev.Hostname = result.Hostname
	}

	rec.lastSuccess = cycle
	rec.missed = 0
	rec.seenInCycle = true

	newPort := false

	if result.OpenPort != 0 {
		last, known := rec.portSeen[result.OpenPort]
		if !known || cycle-last > uint64(portWindowCycles) {
			// Unseen in the last K cycles counts as new exposure.
			if known || dev.Status == models.StatusOnline || dev.Status == models.StatusWarning {
				newPort = true
			}
		}

		rec.portSeen[result.OpenPort] = cycle
		dev.OpenServices[result.OpenPort] = result.Banner
	}

	from := dev.Status

	switch {
	case from == models.StatusUnknown:
		dev.Status = models.StatusDiscovered
	case newPort && (from == models.StatusOnline || from == models.StatusWarning):
		dev.Status = models.StatusWarning
	case from == models.StatusDiscovered, from == models.StatusOffline:
		dev.Status = models.StatusOnline
	case from == models.StatusOnline, from == models.StatusWarning:
		// Liveness refresh; warning is sticky until the cycle completes.
	case from == models.StatusCritical:
		// Critical is owned by the scorer; liveness never clears it.
	}

	if dev.Status == from {
		return nil
	}

	reason := "successful probe"
	if newPort {
		reason = fmt.Sprintf("new open port %d", result.OpenPort)
	}

	return &models.DeviceTransition{
		TenantID:  dev.TenantID,
		DeviceID:  dev.DeviceID,
		From:      from,
		To:        dev.Status,
		Timestamp: result.Timestamp,
		Reason:    reason,
	}
}

// CompleteCycle finalizes a tenant's scan cycle: devices with no successful
// probe accumulate a miss, and only silenceCycles consecutive misses take a
// device offline. Returns the offline transitions emitted.
func (t *Tracker) CompleteCycle(ctx context.Context, tenantID string, silenceCycles int) []models.DeviceTransition {
	var transitions []models.DeviceTransition

	now := time.Now()

	for _, sh := range t.shards {
		sh.mu.Lock()

		for _, rec := range sh.devices {
			if rec.device.TenantID != tenantID {
				continue
			}

			if rec.seenInCycle {
				rec.seenInCycle = false

				// A clean cycle clears a lingering warning back to online.
				if rec.device.Status == models.StatusWarning {
					transitions = append(transitions, models.DeviceTransition{
						TenantID:  tenantID,
						DeviceID:  rec.device.DeviceID,
						From:      models.StatusWarning,
						To:        models.StatusOnline,
						Timestamp: now,
						Reason:    "exposure acknowledged",
					})
					rec.device.Status = models.StatusOnline
				} else if rec.device.Status == models.StatusDiscovered {
					transitions = append(transitions, models.DeviceTransition{
						TenantID:  tenantID,
						DeviceID:  rec.device.DeviceID,
						From:      models.StatusDiscovered,
						To:        models.StatusOnline,
						Timestamp: now,
						Reason:    "liveness confirmed",
					})
					rec.device.Status = models.StatusOnline
				}

				continue
			}

			rec.missed++

			alive := rec.device.Status == models.StatusOnline ||
				rec.device.Status == models.StatusWarning ||
				rec.device.Status == models.StatusDiscovered ||
				rec.device.Status == models.StatusCritical

			if alive && rec.missed >= silenceCycles {
				transitions = append(transitions, models.DeviceTransition{
					TenantID:  tenantID,
					DeviceID:  rec.device.DeviceID,
					From:      rec.device.Status,
					To:        models.StatusOffline,
					Timestamp: now,
					Reason:    fmt.Sprintf("no successful probe for %d cycles", rec.missed),
				})
				rec.device.Status = models.StatusOffline
			}
		}

		sh.mu.Unlock()
	}

	for i := range transitions {
		t.emit(ctx, transitions[i], nil)
	}

	return transitions
}

// EscalateCritical is the single entry point through which the scorer raises
// a device to critical. The tracker itself never sets critical, keeping
// liveness and risk orthogonal.
func (t *Tracker) EscalateCritical(ctx context.Context, tenantID, deviceID, reason string) *models.DeviceTransition {
	sh := t.shardFor(deviceID)
	sh.mu.Lock()

	rec, ok := sh.devices[deviceID]
	if !ok || rec.device.Status == models.StatusCritical {
		sh.mu.Unlock()
		return nil
	}

	from := rec.device.Status
	rec.device.Status = models.StatusCritical
	device := rec.device

	sh.mu.Unlock()

	transition := models.DeviceTransition{
		TenantID:  tenantID,
		DeviceID:  deviceID,
		From:      from,
		To:        models.StatusCritical,
		Timestamp: time.Now(),
		Reason:    reason,
	}

	t.emit(ctx, transition, &device)

	return &transition
}

// GetDevice returns a copy of the device record.
func (t *Tracker) GetDevice(deviceID string) (models.Device, bool) {
	sh := t.shardFor(deviceID)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	rec, ok := sh.devices[deviceID]
	if !ok {
		return models.Device{}, false
	}

	return rec.device, true
}

// emit publishes a transition without ever blocking the probe path. A slow
// consumer loses events rather than stalling scans.
func (t *Tracker) emit(ctx context.Context, transition models.DeviceTransition, device *models.Device) {
	metrics.DeviceTransitions.WithLabelValues(transition.TenantID, string(transition.To)).Inc()

	select {
	case t.transitCh <- transition:
	default:
		t.logger.Warn().
			Str("device_id", transition.DeviceID).
			Msg("Transition channel full, dropping event")
	}

	if t.upserter != nil && device != nil {
		if err := t.upserter.UpsertDevice(ctx, device); err != nil {
			t.logger.Error().Err(err).
				Str("device_id", device.DeviceID).
				Msg("Device upsert failed")
		}
	}
}
