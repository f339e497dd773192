package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/Pmvita/SecureNet-sub007/pkg/config"
)

// ErrUnknownTenant rejects config updates for tenants the engine was not
// started with. Scan loops are created at startup, so accepting a new tenant
// here would store a config that is never scanned.
var ErrUnknownTenant = errors.New("unknown tenant")

// UpdateTenant swaps a tenant's configuration between cycles. Zero-valued
// fields in the incoming config preserve the existing values, so partial
// updates from the tenant service work without restating everything.
func (e *Engine) UpdateTenant(next *config.TenantConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.tenants[next.TenantID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTenant, next.TenantID)
	}

	preserveTenantFields(next, current)

	if err := next.Validate(); err != nil {
		return err
	}

	e.tenants[next.TenantID] = next

	e.logger.Info().
		Str("tenant_id", next.TenantID).
		Int("targets", len(next.Targets)).
		Msg("Tenant configuration updated")

	return nil
}

func preserveTenantFields(next, current *config.TenantConfig) {
	if len(next.Targets) == 0 {
		next.Targets = current.Targets
	}

	preserveInt64(&next.Concurrency, current.Concurrency)
	preserveInt(&next.MaxDevices, current.MaxDevices)
	preserveInt(&next.SilenceCycles, current.SilenceCycles)
	preserveInt(&next.PortWindowCycles, current.PortWindowCycles)
	preserveInt(&next.BaselineDays, current.BaselineDays)
	preserveInt(&next.MinBaselineDays, current.MinBaselineDays)
	preserveDuration(&next.ScanInterval, current.ScanInterval)
	preserveDuration(&next.DedupWindow, current.DedupWindow)

	if next.Thresholds == (config.SeverityThresholds{}) {
		next.Thresholds = current.Thresholds
	}

	if next.Retry.MaxAttempts == 0 && next.Retry.InitialInterval == 0 {
		next.Retry = current.Retry
	}

	if next.QuietHours == nil {
		next.QuietHours = current.QuietHours
	}
}

func preserveInt(next *int, current int) {
	if *next == 0 && current > 0 {
		*next = current
	}
}

func preserveInt64(next *int64, current int64) {
	if *next == 0 && current > 0 {
		*next = current
	}
}

func preserveDuration(next *time.Duration, current time.Duration) {
	if *next == 0 && current > 0 {
		*next = current
	}
}
