package tracker

import (
	"time"

	"github.com/Pmvita/SecureNet-sub007/pkg/models"
)

// TenantSummary aggregates discovery state for one tenant.
type TenantSummary struct {
	TenantID     string                      `json:"tenant_id"`
	TotalDevices int                         `json:"total_devices"`
	ByStatus     map[models.DeviceStatus]int `json:"by_status"`
	LastScan     time.Time                   `json:"last_scan"`
}

// Summary walks the registry and reports device counts by status. Intended
// for dashboards and diagnostics, not the probe path.
func (t *Tracker) Summary(tenantID string) *TenantSummary {
	summary := &TenantSummary{
		TenantID: tenantID,
		ByStatus: make(map[models.DeviceStatus]int),
	}

	for _, sh := range t.shards {
		sh.mu.RLock()

		for _, rec := range sh.devices {
			if rec.device.TenantID != tenantID {
				continue
			}

			summary.TotalDevices++
			summary.ByStatus[rec.device.Status]++
		}

		sh.mu.RUnlock()
	}

	idx := t.index(tenantID)

	idx.mu.RLock()
	summary.LastScan = idx.lastScan
	idx.mu.RUnlock()

	return summary
}

// ListDevices returns copies of every device owned by the tenant, up to
// limit (0 means no limit).
func (t *Tracker) ListDevices(tenantID string, limit int) []models.Device {
	var devices []models.Device

	for _, sh := range t.shards {
		sh.mu.RLock()

		for _, rec := range sh.devices {
			if rec.device.TenantID != tenantID {
				continue
			}

			devices = append(devices, rec.device)

			if limit > 0 && len(devices) >= limit {
				sh.mu.RUnlock()
				return devices
			}
		}

		sh.mu.RUnlock()
	}

	return devices
}
