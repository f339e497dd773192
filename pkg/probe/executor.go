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

// Package probe issues individual network probes against single targets.
// Executors are stateless and safe for concurrent use from many goroutines.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/Pmvita/SecureNet-sub007/pkg/logger"
	"github.com/Pmvita/SecureNet-sub007/pkg/models"
)

const (
	defaultTimeout     = 5 * time.Second
	maxBannerBytes     = 256
	bannerReadDeadline = 2 * time.Second
)

// pingPorts are the discriminator ports tried for reachability probes. A
// refused connection on any of them proves the host is present.
var pingPorts = []int{443, 80, 22, 445}

// Executor issues single probes with a bounded timeout.
type Executor struct {
	timeout  time.Duration
	resolver *net.Resolver
	logger   logger.Logger
}

// NewExecutor creates a probe executor. A zero timeout gets the default.
func NewExecutor(timeout time.Duration, log logger.Logger) *Executor {
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Executor{
		timeout:  timeout,
		resolver: net.DefaultResolver,
		logger:   log,
	}
}

// Probe runs one network check against the target. It never blocks beyond
// the executor timeout (or an earlier context deadline) and never returns an
// error: outcomes are data. A timeout yields OutcomeTimeout; a refused
// connection yields OutcomeRefused, which is distinguishable from absence.
func (e *Executor) Probe(ctx context.Context, target models.ProbeTarget) models.ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()

	result := models.ProbeResult{
		Target:    target,
		Timestamp: start,
	}

	switch target.Kind {
	case models.ProbePing:
		e.probePing(probeCtx, &result)
	case models.ProbePort:
		e.probePort(probeCtx, &result)
	case models.ProbeBanner:
		e.probeBanner(probeCtx, &result)
	default:
		result.Outcome = models.OutcomeError
	}

	result.Latency = time.Since(start)

	return result
}

func (e *Executor) probePort(ctx context.Context, result *models.ProbeResult) {
	conn, err := e.dial(ctx, result.Target.Host, result.Target.Port)
	if err != nil {
		result.Outcome = classifyDialError(ctx, err)
		return
	}

	defer e.closeConn(conn)

	result.Outcome = models.OutcomeSuccess
	result.OpenPort = result.Target.Port
}

// probePing establishes host presence by dialing a small set of well-known
// ports; refusal is as good as acceptance. Successful probes are enriched
// with reverse DNS and, on the local segment, the neighbor-table MAC.
func (e *Executor) probePing(ctx context.Context, result *models.ProbeResult) {
	result.Outcome = models.OutcomeTimeout

	for _, port := range pingPorts {
		if ctx.Err() != nil {
			break
		}

		conn, err := e.dial(ctx, result.Target.Host, port)
		if err == nil {
			e.closeConn(conn)

			result.Outcome = models.OutcomeSuccess

			break
		}

		if errors.Is(err, syscall.ECONNREFUSED) {
			result.Outcome = models.OutcomeSuccess
			break
		}
	}

	if result.Outcome != models.OutcomeSuccess {
		return
	}

	if names, err := e.resolver.LookupAddr(ctx, result.Target.Host); err == nil && len(names) > 0 {
		result.Hostname = strings.TrimSuffix(names[0], ".")
	}

	if mac := lookupNeighborMAC(result.Target.Host); mac != "" {
		result.MAC = mac
	}
}

func (e *Executor) probeBanner(ctx context.Context, result *models.ProbeResult) {
	conn, err := e.dial(ctx, result.Target.Host, result.Target.Port)
	if err != nil {
		result.Outcome = classifyDialError(ctx, err)
		return
	}

	defer e.closeConn(conn)

	result.Outcome = models.OutcomeSuccess
	result.OpenPort = result.Target.Port

	deadline := time.Now().Add(bannerReadDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return
	}

	buf := make([]byte, maxBannerBytes)

	n, err := conn.Read(buf)
	if n > 0 {
		result.Banner = strings.ToValidUTF8(strings.TrimSpace(string(buf[:n])), "")
	} else if err != nil {
		// Quiet services are common; an empty banner is not a failure.
		e.logger.Debug().Err(err).Str("host", result.Target.Host).
			Int("port", result.Target.Port).Msg("no banner read")
	}
}

func (e *Executor) dial(ctx context.Context, host string, port int) (net.Conn, error) {
	var dialer net.Dialer

	return dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
}

func (e *Executor) closeConn(conn net.Conn) {
	if err := conn.Close(); err != nil {
		e.logger.Error().Err(err).Msg("failed to close connection")
	}
}

func classifyDialError(ctx context.Context, err error) models.ProbeOutcome {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return models.OutcomeRefused
	}

	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return models.OutcomeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.OutcomeTimeout
	}

	return models.OutcomeError
}
