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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileConfigLoader loads configuration from a local JSON file.
type FileConfigLoader struct{}

// Load implements ConfigLoader by reading and unmarshaling a JSON file.
func (*FileConfigLoader) Load(_ context.Context, path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	err = json.Unmarshal(data, dst)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
	}

	return nil
}

// LoadEngineFile reads, unmarshals, and validates an engine config document,
// including its embedded tenants.
func LoadEngineFile(ctx context.Context, path string) (*EngineConfig, []*TenantConfig, error) {
	var doc engineFile

	loader := &FileConfigLoader{}
	if err := loader.Load(ctx, path, &doc); err != nil {
		return nil, nil, err
	}

	engine := doc.engineConfig()
	if err := engine.Validate(); err != nil {
		return nil, nil, err
	}

	tenants := make([]*TenantConfig, 0, len(doc.Tenants))

	for i := range doc.Tenants {
		tenant := doc.Tenants[i].tenantConfig()
		if err := tenant.Validate(); err != nil {
			return nil, nil, fmt.Errorf("tenant %q: %w", tenant.TenantID, err)
		}

		tenants = append(tenants, tenant)
	}

	return engine, tenants, nil
}
