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

// Package config defines the engine and tenant configuration surface.
// Every recognized option is an explicit field with validated ranges;
// invalid configuration is rejected at load time, never at scan time.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Pmvita/SecureNet-sub007/pkg/models"
	"github.com/Pmvita/SecureNet-sub007/pkg/probe"
)

var (
	ErrRangeExceedsQuota  = errors.New("range_exceeds_quota")
	errNoTenantID         = errors.New("tenant id is required")
	errNoTargets          = errors.New("at least one target is required")
	errBadConcurrency     = errors.New("concurrency must be positive")
	errBadSilenceWindow   = errors.New("silence window must be at least 1 cycle")
	errBadThresholdOrder  = errors.New("severity thresholds must be strictly increasing")
	errBadThresholdRange  = errors.New("severity thresholds must be within 0-100")
	errBadQuietHours      = errors.New("quiet hours must be HH:MM")
	errBadDiscoveryMethod = errors.New("unknown discovery method")
	errBadInterval        = errors.New("scan interval must be at least 10s")
)

const (
	defaultMaxDevices       = 256
	defaultSilenceCycles    = 3
	defaultPortWindowCycles = 5
	defaultDedupWindow      = 30 * time.Minute
	defaultScanInterval     = 5 * time.Minute
	defaultProbeTimeout     = 5 * time.Second
	defaultBaselineDays     = 30
	defaultMinBaselineDays  = 7
	minScanInterval         = 10 * time.Second
)

// EngineConfig is the process-wide configuration.
type EngineConfig struct {
	// GlobalMaxInFlight caps total in-flight probes across all tenants,
	// protecting the scanning host's own network stack.
	GlobalMaxInFlight int64         `json:"global_max_in_flight"`
	CycleTimeout      time.Duration `json:"cycle_timeout"`
	ProbeTimeout      time.Duration `json:"probe_timeout"`
	ProbeRateLimit    float64       `json:"probe_rate_limit"`
	MetricsAddr       string        `json:"metrics_addr"`
	Logging           *LoggerConfig `json:"logging,omitempty"`
}

// LoggerConfig mirrors logger.Config so engine config files stay one document.
type LoggerConfig struct {
	Level  string `json:"level"`
	Debug  bool   `json:"debug"`
	Output string `json:"output"`
}

// TargetConfig is one configured scan unit: a CIDR range or single host.
type TargetConfig struct {
	Network    string                 `json:"network"`
	Method     models.DiscoveryMethod `json:"method"`
	Ports      []int                  `json:"ports,omitempty"`
	GrabBanner bool                   `json:"grab_banner,omitempty"`
}

// SeverityThresholds map a 0-100 risk score onto severity tiers. A score at
// or above a tier's threshold earns that tier.
type SeverityThresholds struct {
	Low      float64 `json:"low"`
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

// Tier returns the severity tier for a score, or false when the score sits
// below the lowest threshold.
func (t *SeverityThresholds) Tier(score float64) (models.Severity, bool) {
	switch {
	case score >= t.Critical:
		return models.SeverityCritical, true
	case score >= t.High:
		return models.SeverityHigh, true
	case score >= t.Medium:
		return models.SeverityMedium, true
	case score >= t.Low:
		return models.SeverityLow, true
	default:
		return "", false
	}
}

// QuietHours suppresses alert dispatch (never evaluation) between Start and
// End, both local wall-clock "HH:MM". A window may span midnight.
type QuietHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether the instant falls inside the quiet window.
func (q *QuietHours) Contains(now time.Time) bool {
	if q == nil || q.Start == "" || q.End == "" {
		return false
	}

	start, err1 := time.Parse("15:04", q.Start)
	end, err2 := time.Parse("15:04", q.End)

	if err1 != nil || err2 != nil {
		return false
	}

	minutes := now.Hour()*60 + now.Minute()
	s := start.Hour()*60 + start.Minute()
	e := end.Hour()*60 + end.Minute()

	if s <= e {
		return minutes >= s && minutes < e
	}

	// Window spans midnight.
	return minutes >= s || minutes < e
}

// RetryPolicy models transient-probe retries explicitly so tests can inject
// deterministic policies.
type RetryPolicy struct {
	MaxAttempts     int           `json:"max_attempts"`
	InitialInterval time.Duration `json:"initial_interval"`
	Multiplier      float64       `json:"multiplier"`
	MaxInterval     time.Duration `json:"max_interval"`
}

// DefaultRetryPolicy retries transient failures twice with exponential
// backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     2,
		InitialInterval: 250 * time.Millisecond,
		Multiplier:      2.0,
		MaxInterval:     2 * time.Second,
	}
}

// TenantConfig is everything the engine knows about one tenant's scanning.
type TenantConfig struct {
	TenantID         string             `json:"tenant_id"`
	Targets          []TargetConfig     `json:"targets"`
	Concurrency      int64              `json:"concurrency"`
	MaxDevices       int                `json:"max_devices"`
	ScanInterval     time.Duration      `json:"scan_interval"`
	SilenceCycles    int                `json:"silence_cycles"`
	PortWindowCycles int                `json:"port_window_cycles"`
	Thresholds       SeverityThresholds `json:"thresholds"`
	DedupWindow      time.Duration      `json:"dedup_window"`
	QuietHours       *QuietHours        `json:"quiet_hours,omitempty"`
	Maintenance      bool               `json:"maintenance"`
	Retry            RetryPolicy        `json:"retry"`
	BaselineDays     int                `json:"baseline_days"`
	MinBaselineDays  int                `json:"min_baseline_days"`
}

// Validate checks the engine configuration and applies defaults.
func (c *EngineConfig) Validate() error {
	if c.GlobalMaxInFlight <= 0 {
		c.GlobalMaxInFlight = 1024
	}

	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 10 * time.Minute
	}

	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}

	if c.ProbeRateLimit <= 0 {
		c.ProbeRateLimit = 500
	}

	return nil
}

// Validate checks the tenant configuration, applies defaults, and rejects
// ranges whose expansion would exceed the tenant's device quota. Over-limit
// ranges fail here, at configuration time, and are never silently truncated
// during a scan.
func (c *TenantConfig) Validate() error {
	if c.TenantID == "" {
		return errNoTenantID
	}

	if len(c.Targets) == 0 {
		return errNoTargets
	}

	c.applyDefaults()

	if c.Concurrency <= 0 {
		return errBadConcurrency
	}

	if c.SilenceCycles < 1 {
		return errBadSilenceWindow
	}

	if c.ScanInterval < minScanInterval {
		return fmt.Errorf("%w: got %s", errBadInterval, c.ScanInterval)
	}

	if err := c.validateThresholds(); err != nil {
		return err
	}

	if err := c.validateQuietHours(); err != nil {
		return err
	}

	return c.validateTargets()
}

func (c *TenantConfig) applyDefaults() {
	if c.MaxDevices <= 0 {
		c.MaxDevices = defaultMaxDevices
	}

	if c.SilenceCycles == 0 {
		c.SilenceCycles = defaultSilenceCycles
	}

	if c.PortWindowCycles <= 0 {
		c.PortWindowCycles = defaultPortWindowCycles
	}

	if c.DedupWindow <= 0 {
		c.DedupWindow = defaultDedupWindow
	}

	if c.ScanInterval <= 0 {
		c.ScanInterval = defaultScanInterval
	}

	if c.Retry.MaxAttempts == 0 && c.Retry.InitialInterval == 0 {
		c.Retry = DefaultRetryPolicy()
	}

	if c.BaselineDays <= 0 {
		c.BaselineDays = defaultBaselineDays
	}

	if c.MinBaselineDays <= 0 {
		c.MinBaselineDays = defaultMinBaselineDays
	}

	if c.Thresholds == (SeverityThresholds{}) {
		c.Thresholds = SeverityThresholds{Low: 20, Medium: 40, High: 65, Critical: 85}
	}
}

func (c *TenantConfig) validateThresholds() error {
	t := c.Thresholds

	for _, v := range []float64{t.Low, t.Medium, t.High, t.Critical} {
		if v < 0 || v > 100 {
			return errBadThresholdRange
		}
	}

	if !(t.Low < t.Medium && t.Medium < t.High && t.High < t.Critical) {
		return errBadThresholdOrder
	}

	return nil
}

func (c *TenantConfig) validateQuietHours() error {
	if c.QuietHours == nil {
		return nil
	}

	if _, err := time.Parse("15:04", c.QuietHours.Start); err != nil {
		return fmt.Errorf("%w: start %q", errBadQuietHours, c.QuietHours.Start)
	}

	if _, err := time.Parse("15:04", c.QuietHours.End); err != nil {
		return fmt.Errorf("%w: end %q", errBadQuietHours, c.QuietHours.End)
	}

	return nil
}

func (c *TenantConfig) validateTargets() error {
	total := 0

	for i := range c.Targets {
		t := &c.Targets[i]

		switch t.Method {
		case "":
			t.Method = models.DiscoveryPingARP
		case models.DiscoveryPingARP, models.DiscoveryARPOnly, models.DiscoveryPassive:
		default:
			return fmt.Errorf("%w: %q", errBadDiscoveryMethod, t.Method)
		}

		count, err := probe.HostCount(t.Network)
		if err != nil {
			return err
		}

		if count > c.MaxDevices {
			return fmt.Errorf("%w: network %s expands to %d hosts, tenant limit is %d",
				ErrRangeExceedsQuota, t.Network, count, c.MaxDevices)
		}

		total += count
	}

	if total > c.MaxDevices {
		return fmt.Errorf("%w: targets expand to %d hosts combined, tenant limit is %d",
			ErrRangeExceedsQuota, total, c.MaxDevices)
	}

	return nil
}
