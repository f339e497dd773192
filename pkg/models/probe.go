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

// Package models provides the shared data models for the discovery engine.
package models

import "time"

// ProbeKind identifies the type of network check issued against a target.
type ProbeKind string

const (
	ProbePing   ProbeKind = "ping"
	ProbePort   ProbeKind = "port"
	ProbeBanner ProbeKind = "banner"
)

// ProbeOutcome classifies the result of a single probe attempt.
//
// A refused connection is a positive signal (host present, port closed) and
// is kept distinct from a timeout (host absent or filtered).
type ProbeOutcome string

const (
	OutcomeSuccess ProbeOutcome = "success"
	OutcomeTimeout ProbeOutcome = "timeout"
	OutcomeRefused ProbeOutcome = "refused"
	OutcomeError   ProbeOutcome = "error"
)

// DiscoveryMethod selects how a target's hosts are discovered.
type DiscoveryMethod string

const (
	DiscoveryPingARP DiscoveryMethod = "ping_arp"
	DiscoveryARPOnly DiscoveryMethod = "arp_only"
	DiscoveryPassive DiscoveryMethod = "passive"
)

// ProbeTarget is a single addressable unit of work for the probe executor.
type ProbeTarget struct {
	TenantID string    `json:"tenant_id"`
	Host     string    `json:"host"`
	Port     int       `json:"port,omitempty"`
	Kind     ProbeKind `json:"kind"`
}

// ProbeResult is the immutable record of one probe attempt.
type ProbeResult struct {
	Target    ProbeTarget   `json:"target"`
	CycleID   string        `json:"cycle_id"`
	Outcome   ProbeOutcome  `json:"outcome"`
	Timestamp time.Time     `json:"timestamp"`
	Latency   time.Duration `json:"latency"`
	Attempts  int           `json:"attempts,omitempty"`

	// Discovered attributes, populated on success where applicable.
	OpenPort int    `json:"open_port,omitempty"`
	Banner   string `json:"banner,omitempty"`
	MAC      string `json:"mac,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	TTL      int    `json:"ttl,omitempty"`
}

// Available reports whether the probe proved the host is present. A refused
// connection still proves presence.
func (r *ProbeResult) Available() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomeRefused
}
