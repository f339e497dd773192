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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/Pmvita/SecureNet-sub007/pkg/alerting"
	"github.com/Pmvita/SecureNet-sub007/pkg/baseline"
	"github.com/Pmvita/SecureNet-sub007/pkg/config"
	"github.com/Pmvita/SecureNet-sub007/pkg/engine"
	"github.com/Pmvita/SecureNet-sub007/pkg/lifecycle"
	"github.com/Pmvita/SecureNet-sub007/pkg/metrics"
	"github.com/Pmvita/SecureNet-sub007/pkg/probe"
	"github.com/Pmvita/SecureNet-sub007/pkg/scheduler"
	"github.com/Pmvita/SecureNet-sub007/pkg/scorer"
	"github.com/Pmvita/SecureNet-sub007/pkg/tracker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/securenet/netengine.json", "Path to engine config file")
	webhookURL := flag.String("webhook-url", "", "Optional alert webhook endpoint")
	wsAddr := flag.String("ws-addr", "", "Optional WebSocket alert stream listen address")
	flag.Parse()

	ctx := context.Background()

	engineCfg, tenants, err := config.LoadEngineFile(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logg, err := lifecycle.NewLogger(engineCfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	executor := probe.NewExecutor(engineCfg.ProbeTimeout, logg)
	sched := scheduler.New(executor, engineCfg.GlobalMaxInFlight, engineCfg.ProbeRateLimit, logg)
	track := tracker.New(nil, logg)
	baselines := baseline.NewStore(0, 0, logg)
	score := scorer.New(baselines, nil, track, logg)

	channels := []alerting.Channel{
		alerting.NewLogChannel(func(payload string) {
			logg.Info().RawJSON("alert", []byte(payload)).Msg("Alert")
		}),
	}

	if *webhookURL != "" {
		channels = append(channels, alerting.NewWebhookChannel(*webhookURL))
	}

	if *wsAddr != "" {
		hub := alerting.NewWebSocketHub(logg)
		channels = append(channels, hub)

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/alerts/stream", hub)

			if serveErr := (&http.Server{Addr: *wsAddr, Handler: mux}).ListenAndServe(); serveErr != nil {
				logg.Warn().Err(serveErr).Msg("WebSocket server stopped")
			}
		}()
	}

	dispatch := alerting.NewDispatcher(channels, logg)

	eng := engine.New(engineCfg, sched, track, baselines, score, dispatch, tenants, logg)

	if engineCfg.MetricsAddr != "" {
		go metrics.Serve(engineCfg.MetricsAddr, logg)
	}

	// The dashboard layer consumes transitions; without one attached we
	// still need to drain the stream.
	go func() {
		for transition := range eng.Transitions() {
			logg.Debug().
				Str("device_id", transition.DeviceID).
				Str("to", string(transition.To)).
				Msg("Device transition event")
		}
	}()

	return lifecycle.Run(ctx, eng, logg)
}
