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

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pmvita/SecureNet-sub007/pkg/config"
	"github.com/Pmvita/SecureNet-sub007/pkg/logger"
	"github.com/Pmvita/SecureNet-sub007/pkg/metrics"
	"github.com/Pmvita/SecureNet-sub007/pkg/models"
)

// fakeExecutor tracks concurrency and scripts outcomes per host.
type fakeExecutor struct {
	mu        sync.Mutex
	inFlight  int64
	maxSeen   int64
	delay     time.Duration
	outcomes  map[string][]models.ProbeOutcome // consumed per call
	calls     map[string]int
	defaultTo models.ProbeOutcome
}

func newFakeExecutor(defaultOutcome models.ProbeOutcome) *fakeExecutor {
	return &fakeExecutor{
		outcomes:  make(map[string][]models.ProbeOutcome),
		calls:     make(map[string]int),
		defaultTo: defaultOutcome,
	}
}

func (f *fakeExecutor) script(host string, outcomes ...models.ProbeOutcome) {
	f.outcomes[host] = outcomes
}

func (f *fakeExecutor) Probe(_ context.Context, target models.ProbeTarget) models.ProbeResult {
	cur := atomic.AddInt64(&f.inFlight, 1)
	defer atomic.AddInt64(&f.inFlight, -1)

	for {
		max := atomic.LoadInt64(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt64(&f.maxSeen, max, cur) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.calls[target.Host]++

	outcome := f.defaultTo
	if queued := f.outcomes[target.Host]; len(queued) > 0 {
		outcome = queued[0]
		f.outcomes[target.Host] = queued[1:]
	}
	f.mu.Unlock()

	return models.ProbeResult{
		Target:    target,
		Outcome:   outcome,
		Timestamp: time.Now(),
	}
}

func testTenant(t *testing.T) *config.TenantConfig {
	t.Helper()

	cfg := &config.TenantConfig{
		TenantID: "tenant-a",
		Targets: []config.TargetConfig{
			{Network: "192.168.1.0/28", Ports: []int{22}},
		},
		Concurrency:  4,
		MaxDevices:   64,
		ScanInterval: time.Minute,
		Retry:        config.NoRetry(),
	}
	require.NoError(t, cfg.Validate())

	return cfg
}

func drain(t *testing.T, ch <-chan models.ProbeResult) []models.ProbeResult {
	t.Helper()

	var results []models.ProbeResult

	deadline := time.After(10 * time.Second)

	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return results
			}

			results = append(results, r)
		case <-deadline:
			t.Fatal("result stream did not close")
		}
	}
}

func TestBuildTasks(t *testing.T) {
	tenant := testTenant(t)
	tenant.Targets = []config.TargetConfig{
		{Network: "192.168.1.0/30", Method: models.DiscoveryPingARP, Ports: []int{22, 80}},
	}

	tasks, err := BuildTasks(tenant)
	require.NoError(t, err)

	// 2 hosts, each with one ping plus two port probes.
	assert.Len(t, tasks, 6)

	pings := 0

	for _, task := range tasks {
		assert.Equal(t, "tenant-a", task.TenantID)

		if task.Kind == models.ProbePing {
			pings++
		}
	}

	assert.Equal(t, 2, pings)
}

func TestBuildTasks_ARPOnlySkipsPing(t *testing.T) {
	tenant := testTenant(t)
	tenant.Targets = []config.TargetConfig{
		{Network: "192.168.1.0/30", Method: models.DiscoveryARPOnly, Ports: []int{22}},
	}

	tasks, err := BuildTasks(tenant)
	require.NoError(t, err)

	require.Len(t, tasks, 2)

	for _, task := range tasks {
		assert.Equal(t, models.ProbePort, task.Kind)
	}
}

func TestBuildTasks_PassiveProducesNoProbes(t *testing.T) {
	tenant := testTenant(t)
	tenant.Targets = []config.TargetConfig{
		{Network: "192.168.1.0/28", Method: models.DiscoveryPassive},
	}

	tasks, err := BuildTasks(tenant)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestBuildTasks_BannerGrab(t *testing.T) {
	tenant := testTenant(t)
	tenant.Targets = []config.TargetConfig{
		{Network: "10.0.0.1/32", Ports: []int{21}, GrabBanner: true},
	}

	tasks, err := BuildTasks(tenant)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, models.ProbeBanner, tasks[1].Kind)
}

func TestRunCycle_AllTasksComplete(t *testing.T) {
	exec := newFakeExecutor(models.OutcomeSuccess)
	s := New(exec, 128, 10000, logger.NewTestLogger())

	tenant := testTenant(t)

	resultCh, cycle, err := s.RunCycle(context.Background(), tenant)
	require.NoError(t, err)
	require.NotNil(t, cycle)

	results := drain(t, resultCh)
	assert.Len(t, results, cycle.Tasks)

	for _, r := range results {
		assert.Equal(t, cycle.ID, r.CycleID)
		assert.Equal(t, models.OutcomeSuccess, r.Outcome)
	}
}

func TestRunCycle_ConcurrencyNeverExceedsTenantQuota(t *testing.T) {
	exec := newFakeExecutor(models.OutcomeSuccess)
	exec.delay = 5 * time.Millisecond

	s := New(exec, 128, 10000, logger.NewTestLogger())

	tenant := testTenant(t)
	tenant.Concurrency = 3

	resultCh, _, err := s.RunCycle(context.Background(), tenant)
	require.NoError(t, err)

	drain(t, resultCh)

	assert.LessOrEqual(t, atomic.LoadInt64(&exec.maxSeen), int64(3),
		"in-flight probes must stay within the tenant quota")
}

func TestRunCycle_GlobalQuotaCapsAllTenants(t *testing.T) {
	exec := newFakeExecutor(models.OutcomeSuccess)
	exec.delay = 5 * time.Millisecond

	// Global cap of 2 while the tenant alone would allow 8 workers.
	s := New(exec, 2, 10000, logger.NewTestLogger())

	tenant := testTenant(t)
	tenant.Concurrency = 8

	resultCh, _, err := s.RunCycle(context.Background(), tenant)
	require.NoError(t, err)

	drain(t, resultCh)

	assert.LessOrEqual(t, atomic.LoadInt64(&exec.maxSeen), int64(2))
}

func TestRunCycle_CancellationKeepsPartialResults(t *testing.T) {
	exec := newFakeExecutor(models.OutcomeSuccess)
	exec.delay = 20 * time.Millisecond

	s := New(exec, 128, 10000, logger.NewTestLogger())

	tenant := testTenant(t)
	tenant.Concurrency = 1

	ctx, cancel := context.WithCancel(context.Background())

	resultCh, cycle, err := s.RunCycle(ctx, tenant)
	require.NoError(t, err)

	// Let a few probes finish, then cancel mid-cycle.
	time.Sleep(50 * time.Millisecond)
	cancel()

	results := drain(t, resultCh)

	assert.NotEmpty(t, results, "completed probes survive cancellation")
	assert.Less(t, len(results), cycle.Tasks, "cancellation abandons the remainder")
}

func TestRunCycle_EveryDroppedTaskIsCounted(t *testing.T) {
	exec := newFakeExecutor(models.OutcomeSuccess)
	exec.delay = 20 * time.Millisecond

	s := New(exec, 128, 10000, logger.NewTestLogger())

	tenant := testTenant(t)
	tenant.TenantID = "tenant-quota-count"
	tenant.Concurrency = 1
	tenant.Targets = []config.TargetConfig{
		{Network: "192.168.9.0/29"},
	}

	quotaCounter := metrics.QuotaExceeded.WithLabelValues(tenant.TenantID)
	before := testutil.ToFloat64(quotaCounter)

	ctx, cancel := context.WithCancel(context.Background())

	resultCh, cycle, err := s.RunCycle(ctx, tenant)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	cancel()

	results := drain(t, resultCh)

	dropped := testutil.ToFloat64(quotaCounter) - before

	assert.Positive(t, dropped)
	assert.InDelta(t, float64(cycle.Tasks-len(results)), dropped, 0.01,
		"every task is either executed or counted as dropped")
}

func TestProbeWithRetry_TransientThenSuccess(t *testing.T) {
	exec := newFakeExecutor(models.OutcomeSuccess)
	exec.script("10.9.9.9", models.OutcomeTimeout, models.OutcomeSuccess)

	s := New(exec, 128, 10000, logger.NewTestLogger())

	tenant := testTenant(t)
	tenant.Retry = config.RetryPolicy{
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		Multiplier:      1.0,
		MaxInterval:     time.Millisecond,
	}

	result := s.probeWithRetry(context.Background(), tenant, models.ProbeTarget{
		TenantID: "tenant-a",
		Host:     "10.9.9.9",
		Kind:     models.ProbePing,
	})

	assert.Equal(t, models.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 2, result.Attempts)
}

func TestProbeWithRetry_RefusedIsNeverRetried(t *testing.T) {
	exec := newFakeExecutor(models.OutcomeRefused)

	s := New(exec, 128, 10000, logger.NewTestLogger())

	tenant := testTenant(t)
	tenant.Retry = config.DefaultRetryPolicy()

	result := s.probeWithRetry(context.Background(), tenant, models.ProbeTarget{
		Host: "10.9.9.10",
		Kind: models.ProbePort,
		Port: 23,
	})

	assert.Equal(t, models.OutcomeRefused, result.Outcome)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, exec.calls["10.9.9.10"])
}

func TestProbeWithRetry_BudgetExhausted(t *testing.T) {
	exec := newFakeExecutor(models.OutcomeTimeout)

	s := New(exec, 128, 10000, logger.NewTestLogger())

	tenant := testTenant(t)
	tenant.Retry = config.RetryPolicy{
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		Multiplier:      1.0,
		MaxInterval:     time.Millisecond,
	}

	result := s.probeWithRetry(context.Background(), tenant, models.ProbeTarget{
		Host: "10.9.9.11",
		Kind: models.ProbePing,
	})

	assert.Equal(t, models.OutcomeTimeout, result.Outcome)
	assert.Equal(t, 3, result.Attempts, "initial attempt plus two retries")
}
