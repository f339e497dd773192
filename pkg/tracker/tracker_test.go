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

package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pmvita/SecureNet-sub007/pkg/logger"
	"github.com/Pmvita/SecureNet-sub007/pkg/models"
)

const (
	testTenant     = "tenant-a"
	testPortWindow = 5
	testSilence    = 3
)

type fakeUpserter struct {
	mu      sync.Mutex
	devices []models.Device
}

func (f *fakeUpserter) UpsertDevice(_ context.Context, device *models.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.devices = append(f.devices, *device)

	return nil
}

func success(host string, opts ...func(*models.ProbeResult)) *models.ProbeResult {
	r := &models.ProbeResult{
		Target: models.ProbeTarget{
			TenantID: testTenant,
			Host:     host,
			Kind:     models.ProbePing,
		},
		Outcome:   models.OutcomeSuccess,
		Timestamp: time.Now(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func withMAC(mac string) func(*models.ProbeResult) {
	return func(r *models.ProbeResult) { r.MAC = mac }
}

func withHostname(name string) func(*models.ProbeResult) {
	return func(r *models.ProbeResult) { r.Hostname = name }
}

func withOpenPort(port int) func(*models.ProbeResult) {
	return func(r *models.ProbeResult) {
		r.Target.Kind = models.ProbePort
		r.Target.Port = port
		r.OpenPort = port
	}
}

// runCleanCycle applies the given results and completes the cycle.
func runCleanCycle(t *testing.T, tr *Tracker, results ...*models.ProbeResult) {
	t.Helper()

	tr.BeginCycle(testTenant)

	for _, r := range results {
		tr.Apply(context.Background(), r, testPortWindow)
	}

	tr.CompleteCycle(context.Background(), testTenant, testSilence)
}

func TestApply_NewDeviceDiscovered(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())
	tr.BeginCycle(testTenant)

	id, transition, finding := tr.Apply(context.Background(), success("192.168.1.10"), testPortWindow)

	require.NotEmpty(t, id)
	require.NotNil(t, transition)
	assert.Nil(t, finding)
	assert.Equal(t, models.StatusUnknown, transition.From)
	assert.Equal(t, models.StatusDiscovered, transition.To)

	dev, ok := tr.GetDevice(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusDiscovered, dev.Status)
	assert.Equal(t, "192.168.1.10", dev.IP)
}

func TestApply_UnavailableResultIsIgnored(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())
	tr.BeginCycle(testTenant)

	r := success("192.168.1.10")
	r.Outcome = models.OutcomeTimeout

	id, transition, finding := tr.Apply(context.Background(), r, testPortWindow)

	assert.Empty(t, id)
	assert.Nil(t, transition)
	assert.Nil(t, finding)
}

func TestCompleteCycle_DiscoveredBecomesOnline(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())

	runCleanCycle(t, tr, success("192.168.1.10"))

	id, _, _ := tr.Apply(context.Background(), success("192.168.1.10"), testPortWindow)
	dev, ok := tr.GetDevice(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusOnline, dev.Status)
}

func TestCompleteCycle_SingleMissNeverOfflines(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())

	runCleanCycle(t, tr, success("192.168.1.10"))

	// One silent cycle: the device must stay online.
	tr.BeginCycle(testTenant)
	transitions := tr.CompleteCycle(context.Background(), testTenant, testSilence)
	assert.Empty(t, transitions)

	id, _, _ := tr.Apply(context.Background(), success("192.168.1.10"), testPortWindow)
	dev, _ := tr.GetDevice(id)
	assert.Equal(t, models.StatusOnline, dev.Status)
}

func TestCompleteCycle_SilenceWindowOfflines(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())

	runCleanCycle(t, tr, success("192.168.1.10"))

	var offline []models.DeviceTransition

	for i := 0; i < testSilence; i++ {
		tr.BeginCycle(testTenant)
		offline = tr.CompleteCycle(context.Background(), testTenant, testSilence)
	}

	require.Len(t, offline, 1)
	assert.Equal(t, models.StatusOnline, offline[0].From)
	assert.Equal(t, models.StatusOffline, offline[0].To)
}

func TestCompleteCycle_ReappearanceResetsMissCounter(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())

	runCleanCycle(t, tr, success("192.168.1.10"))

	// Two misses, then a success, then two more misses: never offline,
	// because the counter resets on reappearance.
	for i := 0; i < testSilence-1; i++ {
		tr.BeginCycle(testTenant)
		require.Empty(t, tr.CompleteCycle(context.Background(), testTenant, testSilence))
	}

	runCleanCycle(t, tr, success("192.168.1.10"))

	for i := 0; i < testSilence-1; i++ {
		tr.BeginCycle(testTenant)
		require.Empty(t, tr.CompleteCycle(context.Background(), testTenant, testSilence))
	}
}

func TestApply_NewPortTriggersWarning(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())

	runCleanCycle(t, tr, success("192.168.1.10"))

	// Next cycle the device is online and a port never seen before opens.
	tr.BeginCycle(testTenant)
	tr.Apply(context.Background(), success("192.168.1.10"), testPortWindow)

	id, transition, _ := tr.Apply(context.Background(),
		success("192.168.1.10", withOpenPort(23)), testPortWindow)

	require.NotNil(t, transition)
	assert.Equal(t, models.StatusOnline, transition.From)
	assert.Equal(t, models.StatusWarning, transition.To)

	dev, _ := tr.GetDevice(id)
	assert.Equal(t, models.StatusWarning, dev.Status)
	assert.Contains(t, dev.OpenServices, 23)
}

func TestApply_RecentPortIsNotNewExposure(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())

	runCleanCycle(t, tr, success("192.168.1.10", withOpenPort(22)))

	// Port 22 was seen last cycle; seeing it again is routine.
	tr.BeginCycle(testTenant)

	id, transition, _ := tr.Apply(context.Background(),
		success("192.168.1.10", withOpenPort(22)), testPortWindow)

	assert.Nil(t, transition)

	dev, _ := tr.GetDevice(id)
	assert.Equal(t, models.StatusOnline, dev.Status)
}

func TestApply_StalePortCountsAsNewExposure(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())

	runCleanCycle(t, tr, success("192.168.1.10", withOpenPort(22)))

	// Keep the device alive without port 22 for more than the window.
	for i := 0; i < testPortWindow+1; i++ {
		runCleanCycle(t, tr, success("192.168.1.10"))
	}

	tr.BeginCycle(testTenant)

	_, transition, _ := tr.Apply(context.Background(),
		success("192.168.1.10", withOpenPort(22)), testPortWindow)

	require.NotNil(t, transition)
	assert.Equal(t, models.StatusWarning, transition.To)
}

func TestCompleteCycle_WarningClearsAfterCleanCycle(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())

	runCleanCycle(t, tr, success("192.168.1.10"))

	tr.BeginCycle(testTenant)
	tr.Apply(context.Background(), success("192.168.1.10"), testPortWindow)

	id, _, _ := tr.Apply(context.Background(),
		success("192.168.1.10", withOpenPort(23)), testPortWindow)
	tr.CompleteCycle(context.Background(), testTenant, testSilence)

	dev, _ := tr.GetDevice(id)
	assert.Equal(t, models.StatusOnline, dev.Status)
}

func TestResolve_MACWinsOverIP(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())
	tr.BeginCycle(testTenant)

	id1, _, _ := tr.Apply(context.Background(),
		success("192.168.1.10", withMAC("aa:bb:cc:dd:ee:01")), testPortWindow)

	// Same MAC on a new IP resolves to the same device.
	id2, _, _ := tr.Apply(context.Background(),
		success("192.168.1.99", withMAC("aa:bb:cc:dd:ee:01")), testPortWindow)

	assert.Equal(t, id1, id2)

	dev, _ := tr.GetDevice(id1)
	assert.Equal(t, "192.168.1.99", dev.IP, "device follows its MAC to the new address")
}

func TestResolve_IPHostnamePairSurvivesMissingMAC(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())
	tr.BeginCycle(testTenant)

	id1, _, _ := tr.Apply(context.Background(),
		success("192.168.1.10", withHostname("printer.local")), testPortWindow)
	id2, _, _ := tr.Apply(context.Background(),
		success("192.168.1.10", withHostname("printer.local")), testPortWindow)

	assert.Equal(t, id1, id2)
}

func TestResolve_MACConflictSplitsHistory(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())
	tr.BeginCycle(testTenant)

	id1, _, finding := tr.Apply(context.Background(),
		success("192.168.1.10", withMAC("aa:bb:cc:dd:ee:01")), testPortWindow)
	require.Nil(t, finding)

	// The same IP shows up minutes later with a different MAC. Inside the
	// ambiguity window that is a conflict, not a rebind.
	id2, _, finding := tr.Apply(context.Background(),
		success("192.168.1.10", withMAC("aa:bb:cc:dd:ee:02")), testPortWindow)

	require.NotNil(t, finding)
	assert.Equal(t, models.CategoryIdentityConflict, finding.Category)
	assert.Equal(t, models.SeverityLow, finding.Severity)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", finding.Evidence["existing_mac"])
	assert.Equal(t, "aa:bb:cc:dd:ee:02", finding.Evidence["probed_mac"])

	assert.NotEqual(t, id1, id2, "conflicting identities get split histories")

	// The first device's history is intact.
	dev1, ok := tr.GetDevice(id1)
	require.True(t, ok)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", dev1.MAC)
}

func TestEscalateCritical(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())

	runCleanCycle(t, tr, success("192.168.1.10"))

	id, _, _ := tr.Apply(context.Background(), success("192.168.1.10"), testPortWindow)

	transition := tr.EscalateCritical(context.Background(), testTenant, id, "risk score 92")
	require.NotNil(t, transition)
	assert.Equal(t, models.StatusOnline, transition.From)
	assert.Equal(t, models.StatusCritical, transition.To)

	// Idempotent: a second escalation is a no-op.
	assert.Nil(t, tr.EscalateCritical(context.Background(), testTenant, id, "risk score 92"))

	// Liveness refreshes never clear critical.
	tr.BeginCycle(testTenant)
	tr.Apply(context.Background(), success("192.168.1.10"), testPortWindow)

	dev, _ := tr.GetDevice(id)
	assert.Equal(t, models.StatusCritical, dev.Status)
}

func TestEscalateCritical_UnknownDevice(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())

	assert.Nil(t, tr.EscalateCritical(context.Background(), testTenant, "nope", "reason"))
}

func TestTransitionsStreamAndUpserter(t *testing.T) {
	up := &fakeUpserter{}
	tr := New(up, logger.NewTestLogger())
	tr.BeginCycle(testTenant)

	tr.Apply(context.Background(), success("192.168.1.10"), testPortWindow)

	select {
	case transition := <-tr.Transitions():
		assert.Equal(t, models.StatusDiscovered, transition.To)
	case <-time.After(time.Second):
		t.Fatal("expected a transition event")
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	require.Len(t, up.devices, 1)
	assert.Equal(t, "192.168.1.10", up.devices[0].IP)
}

func TestSummary(t *testing.T) {
	tr := New(nil, logger.NewTestLogger())

	runCleanCycle(t, tr,
		success("192.168.1.10"),
		success("192.168.1.11"),
	)

	summary := tr.Summary(testTenant)
	assert.Equal(t, 2, summary.TotalDevices)
	assert.Equal(t, 2, summary.ByStatus[models.StatusOnline])

	devices := tr.ListDevices(testTenant, 10)
	assert.Len(t, devices, 2)
}
