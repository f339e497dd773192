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

// Package lifecycle provides process startup and shutdown plumbing.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Pmvita/SecureNet-sub007/pkg/config"
	"github.com/Pmvita/SecureNet-sub007/pkg/logger"
)

// NewLogger builds the process logger from the engine config's logging
// block, falling back to defaults.
func NewLogger(cfg *config.LoggerConfig) (logger.Logger, error) {
	if cfg == nil {
		return logger.New(nil)
	}

	return logger.New(&logger.Config{
		Level:  cfg.Level,
		Debug:  cfg.Debug,
		Output: cfg.Output,
	})
}

// Service is anything with a blocking run loop.
type Service interface {
	Start(ctx context.Context) error
	Stop()
}

// Run starts the service and blocks until SIGINT/SIGTERM or the service
// exits on its own.
func Run(ctx context.Context, svc Service, log logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- svc.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		svc.Stop()
		cancel()

		return <-errCh
	case err := <-errCh:
		return err
	}
}
