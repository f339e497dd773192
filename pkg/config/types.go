package config

import (
	"encoding/json"
	"time"
)

type durationWrapper time.Duration

func (d *durationWrapper) UnmarshalJSON(b []byte) error {
	var s string

	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	if s == "" {
		*d = durationWrapper(0)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = durationWrapper(dur)

	return nil
}

// engineFile is a temporary struct for unmarshaling JSON with duration
// strings ("5m", "30s") instead of nanosecond integers.
type engineFile struct {
	GlobalMaxInFlight int64           `json:"global_max_in_flight,omitempty"`
	CycleTimeout      durationWrapper `json:"cycle_timeout,omitempty"`
	ProbeTimeout      durationWrapper `json:"probe_timeout,omitempty"`
	ProbeRateLimit    float64         `json:"probe_rate_limit,omitempty"`
	MetricsAddr       string          `json:"metrics_addr,omitempty"`
	Logging           *LoggerConfig   `json:"logging,omitempty"`
	Tenants           []tenantFile    `json:"tenants,omitempty"`
}

func (f *engineFile) engineConfig() *EngineConfig {
	return &EngineConfig{
		GlobalMaxInFlight: f.GlobalMaxInFlight,
		CycleTimeout:      time.Duration(f.CycleTimeout),
		ProbeTimeout:      time.Duration(f.ProbeTimeout),
		ProbeRateLimit:    f.ProbeRateLimit,
		MetricsAddr:       f.MetricsAddr,
		Logging:           f.Logging,
	}
}

type retryFile struct {
	MaxAttempts     int             `json:"max_attempts,omitempty"`
	InitialInterval durationWrapper `json:"initial_interval,omitempty"`
	Multiplier      float64         `json:"multiplier,omitempty"`
	MaxInterval     durationWrapper `json:"max_interval,omitempty"`
}

type tenantFile struct {
	TenantID         string             `json:"tenant_id"`
	Targets          []TargetConfig     `json:"targets,omitempty"`
	Concurrency      int64              `json:"concurrency,omitempty"`
	MaxDevices       int                `json:"max_devices,omitempty"`
	ScanInterval     durationWrapper    `json:"scan_interval,omitempty"`
	SilenceCycles    int                `json:"silence_cycles,omitempty"`
	PortWindowCycles int                `json:"port_window_cycles,omitempty"`
	Thresholds       SeverityThresholds `json:"thresholds,omitempty"`
	DedupWindow      durationWrapper    `json:"dedup_window,omitempty"`
	QuietHours       *QuietHours        `json:"quiet_hours,omitempty"`
	Maintenance      bool               `json:"maintenance,omitempty"`
	Retry            retryFile          `json:"retry,omitempty"`
	BaselineDays     int                `json:"baseline_days,omitempty"`
	MinBaselineDays  int                `json:"min_baseline_days,omitempty"`
}

func (f *tenantFile) tenantConfig() *TenantConfig {
	return &TenantConfig{
		TenantID:         f.TenantID,
		Targets:          f.Targets,
		Concurrency:      f.Concurrency,
		MaxDevices:       f.MaxDevices,
		ScanInterval:     time.Duration(f.ScanInterval),
		SilenceCycles:    f.SilenceCycles,
		PortWindowCycles: f.PortWindowCycles,
		Thresholds:       f.Thresholds,
		DedupWindow:      time.Duration(f.DedupWindow),
		QuietHours:       f.QuietHours,
		Maintenance:      f.Maintenance,
		Retry: RetryPolicy{
			MaxAttempts:     f.Retry.MaxAttempts,
			InitialInterval: time.Duration(f.Retry.InitialInterval),
			Multiplier:      f.Retry.Multiplier,
			MaxInterval:     time.Duration(f.Retry.MaxInterval),
		},
		BaselineDays:    f.BaselineDays,
		MinBaselineDays: f.MinBaselineDays,
	}
}
