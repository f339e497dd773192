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

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbeResultAvailable(t *testing.T) {
	tests := []struct {
		outcome ProbeOutcome
		want    bool
	}{
		{OutcomeSuccess, true},
		{OutcomeRefused, true},
		{OutcomeTimeout, false},
		{OutcomeError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			r := &ProbeResult{Outcome: tt.outcome}
			assert.Equal(t, tt.want, r.Available())
		})
	}
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityRank(SeverityCritical), SeverityRank(SeverityHigh))
	assert.Greater(t, SeverityRank(SeverityHigh), SeverityRank(SeverityMedium))
	assert.Greater(t, SeverityRank(SeverityMedium), SeverityRank(SeverityLow))
	assert.Greater(t, SeverityRank(SeverityLow), SeverityRank(""))
}
