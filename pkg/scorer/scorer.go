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

// Package scorer combines baseline deviation, exposure surface, and
// vulnerability correlation into a single risk score and severity tier.
package scorer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Pmvita/SecureNet-sub007/pkg/baseline"
	"github.com/Pmvita/SecureNet-sub007/pkg/config"
	"github.com/Pmvita/SecureNet-sub007/pkg/logger"
	"github.com/Pmvita/SecureNet-sub007/pkg/metrics"
	"github.com/Pmvita/SecureNet-sub007/pkg/models"
)

const (
	weightAnomaly  = 0.45
	weightExposure = 0.30
	weightVuln     = 0.25

	// zCap normalizes the anomaly component: a z-score at or beyond the cap
	// scores the full 100.
	zCap = 6.0

	defaultLookupTimeout = 2 * time.Second
	vulnCacheSize        = 4096
)

// riskyPortWeights biases the exposure surface toward services that are
// dangerous to expose at all.
var riskyPortWeights = map[int]float64{
	21:    15, // ftp
	23:    25, // telnet
	135:   15, // msrpc
	139:   15, // netbios
	445:   20, // smb
	1433:  15, // mssql
	3306:  10, // mysql
	3389:  20, // rdp
	5900:  15, // vnc
	6379:  15, // redis
	9200:  10, // elasticsearch
	27017: 15, // mongodb
}

const perServiceExposure = 5

// VulnLookup is the external vulnerability intelligence collaborator. It is
// best-effort: a failed or slow lookup degrades scoring, never blocks it.
type VulnLookup interface {
	Lookup(ctx context.Context, fp models.ServiceFingerprint) (*models.VulnAdvisory, error)
}

// Escalator raises a device to critical; satisfied by the tracker.
type Escalator interface {
	EscalateCritical(ctx context.Context, tenantID, deviceID, reason string) *models.DeviceTransition
}

// Scorer computes risk scores for devices.
type Scorer struct {
	baselines     *baseline.Store
	vuln          VulnLookup
	vulnCache     *lru.Cache[string, *models.VulnAdvisory]
	escalator     Escalator
	lookupTimeout time.Duration
	logger        logger.Logger
}

// New creates a scorer. vuln may be nil, in which case the vulnerability
// component always contributes zero.
func New(baselines *baseline.Store, vuln VulnLookup, escalator Escalator, log logger.Logger) *Scorer {
	cache, _ := lru.New[string, *models.VulnAdvisory](vulnCacheSize)

	return &Scorer{
		baselines:     baselines,
		vuln:          vuln,
		vulnCache:     cache,
		escalator:     escalator,
		lookupTimeout: defaultLookupTimeout,
		logger:        log,
	}
}

// Score evaluates one device, optionally with a fresh traffic sample, and
// returns a finding when the combined score clears the tenant's lowest
// threshold. A score past the critical threshold also escalates the device's
// status through the tracker.
func (s *Scorer) Score(
	ctx context.Context,
	device *models.Device,
	tenant *config.TenantConfig,
	sample *models.TrafficSample,
) *models.Finding {
	anomaly := s.anomalyComponent(device, sample)
	exposure := exposureComponent(device)
	vuln, advisories := s.vulnComponent(ctx, device)

	score := weightAnomaly*anomaly + weightExposure*exposure + weightVuln*vuln
	if score > 100 {
		score = 100
	}

	severity, ok := tenant.Thresholds.Tier(score)
	if !ok {
		return nil
	}

	finding := &models.Finding{
		TenantID:  device.TenantID,
		DeviceID:  device.DeviceID,
		Category:  dominantCategory(anomaly, exposure, vuln),
		Score:     score,
		Severity:  severity,
		Timestamp: time.Now(),
		Evidence: map[string]string{
			"anomaly_component":  fmt.Sprintf("%.1f", anomaly),
			"exposure_component": fmt.Sprintf("%.1f", exposure),
			"vuln_component":     fmt.Sprintf("%.1f", vuln),
			"open_services":      strconv.Itoa(len(device.OpenServices)),
		},
	}

	for i, id := range advisories {
		if i >= 5 {
			break
		}

		finding.Evidence["advisory_"+strconv.Itoa(i)] = id
	}

	if severity == models.SeverityCritical && s.escalator != nil {
		s.escalator.EscalateCritical(ctx, device.TenantID, device.DeviceID,
			fmt.Sprintf("risk score %.0f crossed critical threshold", score))
	}

	return finding
}

// anomalyComponent converts the baseline z-score into a 0-100 contribution.
// A device still in its warm-up window contributes zero: the sentinel is an
// explicit no-score policy, not an error.
func (s *Scorer) anomalyComponent(device *models.Device, sample *models.TrafficSample) float64 {
	if sample == nil {
		return 0
	}

	dev, err := s.baselines.Deviation(device.DeviceID, *sample)
	if err != nil {
		if errors.Is(err, baseline.ErrNotEstablished) {
			return 0
		}

		s.logger.Debug().Err(err).Str("device_id", device.DeviceID).Msg("deviation unavailable")

		return 0
	}

	z := dev.Max()
	if z > zCap {
		z = zCap
	}

	return z / zCap * 100
}

func exposureComponent(device *models.Device) float64 {
	var score float64

	for port := range device.OpenServices {
		score += perServiceExposure

		if w, ok := riskyPortWeights[port]; ok {
			score += w
		}
	}

	if score > 100 {
		score = 100
	}

	return score
}

// vulnComponent correlates open services against vulnerability intelligence.
// Lookups run under a short timeout and an LRU cache; any failure yields a
// neutral contribution.
func (s *Scorer) vulnComponent(ctx context.Context, device *models.Device) (float64, []string) {
	if s.vuln == nil || len(device.OpenServices) == 0 {
		return 0, nil
	}

	var (
		worst      models.Severity
		advisories []string
	)

	for port, banner := range device.OpenServices {
		fp := models.ServiceFingerprint{Port: port, Banner: banner}

		advisory := s.lookup(ctx, fp)
		if advisory == nil {
			continue
		}

		if models.SeverityRank(advisory.Severity) > models.SeverityRank(worst) {
			worst = advisory.Severity
		}

		advisories = append(advisories, advisory.AdvisoryIDs...)
	}

	switch worst {
	case models.SeverityCritical:
		return 100, advisories
	case models.SeverityHigh:
		return 75, advisories
	case models.SeverityMedium:
		return 50, advisories
	case models.SeverityLow:
		return 25, advisories
	default:
		return 0, nil
	}
}

func (s *Scorer) lookup(ctx context.Context, fp models.ServiceFingerprint) *models.VulnAdvisory {
	key := strconv.Itoa(fp.Port) + "|" + fp.Banner

	if cached, ok := s.vulnCache.Get(key); ok {
		return cached
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	advisory, err := s.vuln.Lookup(lookupCtx, fp)
	if err != nil {
		metrics.VulnLookupFailures.Inc()
		s.logger.Debug().Err(err).Int("port", fp.Port).Msg("vulnerability lookup failed, scoring without it")

		return nil
	}

	s.vulnCache.Add(key, advisory)

	return advisory
}

func dominantCategory(anomaly, exposure, vuln float64) models.FindingCategory {
	weighted := map[models.FindingCategory]float64{
		models.CategoryAnomaly:            weightAnomaly * anomaly,
		models.CategoryExposedService:     weightExposure * exposure,
		models.CategoryKnownVulnerability: weightVuln * vuln,
	}

	best := models.CategoryExposedService
	bestScore := -1.0

	for _, cat := range []models.FindingCategory{
		models.CategoryAnomaly,
		models.CategoryKnownVulnerability,
		models.CategoryExposedService,
	} {
		if weighted[cat] > bestScore {
			best = cat
			bestScore = weighted[cat]
		}
	}

	return best
}
