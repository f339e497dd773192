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

// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Pmvita/SecureNet-sub007/pkg/logger"
)

var (
	ProbesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netengine_probes_total",
		Help: "Probes executed, by outcome.",
	}, []string{"tenant", "outcome"})

	ProbesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netengine_probes_in_flight",
		Help: "Probes currently holding a worker slot.",
	})

	QuotaExceeded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netengine_quota_exceeded_total",
		Help: "Probe tasks dropped because a quota wait outlived the cycle.",
	}, []string{"tenant"})

	CycleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netengine_scan_cycle_seconds",
		Help:    "Wall time of completed scan cycles.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"tenant"})

	DeviceTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netengine_device_transitions_total",
		Help: "Device status transitions, by resulting status.",
	}, []string{"tenant", "status"})

	AlertsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netengine_alerts_dispatched_total",
		Help: "Alerts pushed to delivery channels.",
	}, []string{"tenant", "severity"})

	AlertsSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netengine_alerts_suppressed_total",
		Help: "Findings merged into an existing alert inside the dedup window.",
	}, []string{"tenant"})

	ChannelFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netengine_channel_failures_total",
		Help: "Alert delivery failures, by channel.",
	}, []string{"channel"})

	VulnLookupFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netengine_vuln_lookup_failures_total",
		Help: "Best-effort vulnerability lookups that timed out or errored.",
	})
)

func init() {
	prometheus.MustRegister(
		ProbesTotal,
		ProbesInFlight,
		QuotaExceeded,
		CycleDuration,
		DeviceTransitions,
		AlertsDispatched,
		AlertsSuppressed,
		ChannelFailures,
		VulnLookupFailures,
	)
}

// Serve exposes /metrics and /healthz on the given address. Blocks until the
// server stops.
func Serve(addr string, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("metrics server stopped")
	}
}
