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

package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Pmvita/SecureNet-sub007/pkg/models"
)

const webhookMaxElapsed = 30 * time.Second

// WebhookChannel POSTs alerts as JSON to a configured endpoint, retrying
// transient failures with exponential backoff.
type WebhookChannel struct {
	url    string
	client *http.Client
}

var _ Channel = (*WebhookChannel)(nil)

// NewWebhookChannel creates a webhook delivery channel.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (*WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Deliver(ctx context.Context, alert *models.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("bad status: %d", resp.StatusCode)
		}

		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = webhookMaxElapsed

	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

// LogChannel writes alerts to the engine log. Used as the always-on channel
// of last resort.
type LogChannel struct {
	write func(string)
}

var _ Channel = (*LogChannel)(nil)

// NewLogChannel creates a log delivery channel using the provided sink.
func NewLogChannel(write func(string)) *LogChannel {
	return &LogChannel{write: write}
}

func (*LogChannel) Name() string { return "log" }

func (l *LogChannel) Deliver(_ context.Context, alert *models.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	l.write(string(payload))

	return nil
}
