/*
 * Copyright (c) 2024, NVIDIA CORPORATION.  All rights reserved.
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

package v1

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linskybing/faculty-admission/internal/resources"
)

const testConfig = `
version: v1
timezone: UTC
cutoffs:
  selfService: "17:30"
  final: "23:00"
overflowPool: free
allocations:
  - id: free
    name: Shared overflow pool
    capacity: {cpu: "16", gpu: "2", memory: 64Gi}
  - id: engineering
    name: Faculty of Engineering
    capacity:
      cpu: 64
      gpu: 8
      memory: 256Gi
`

func TestParseConfigFrom(t *testing.T) {
	config, err := parseConfigFrom(strings.NewReader(testConfig))
	require.NoError(t, err)
	config.SetDefaults()
	require.NoError(t, config.Validate())

	assert.Equal(t, "free", config.OverflowPool)
	require.Len(t, config.Allocations, 2)

	eng := config.Allocations[1]
	assert.Equal(t, "engineering", eng.ID)
	b, err := eng.Capacity.Bundle()
	require.NoError(t, err)
	assert.Equal(t, resources.New(64, 8, 256*1024*1024*1024), b)

	first, final, err := config.CutoffDurations()
	require.NoError(t, err)
	assert.Equal(t, 17*time.Hour+30*time.Minute, first)
	assert.Equal(t, 23*time.Hour, final)

	loc, err := config.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestNewConfigFromFileAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "overflowPool: free\nallocations:\n  - id: free\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	config, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Version, config.Version)
	assert.Equal(t, DefaultSelfServiceCutoff, config.Cutoffs.SelfService)
	assert.Equal(t, DefaultFinalCutoff, config.Cutoffs.Final)
	assert.Equal(t, "Local", config.Timezone)
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		description   string
		mutate        func(*Config)
		errorContains []string
	}{
		{
			description: "default config is valid",
			mutate:      func(*Config) {},
		},
		{
			description:   "unknown version",
			mutate:        func(c *Config) { c.Version = "v2" },
			errorContains: []string{`unknown version: "v2"`},
		},
		{
			description:   "cutoffs out of order",
			mutate:        func(c *Config) { c.Cutoffs = Cutoffs{SelfService: "20:00", Final: "19:00"} },
			errorContains: []string{"must be after"},
		},
		{
			description:   "malformed cutoff",
			mutate:        func(c *Config) { c.Cutoffs.Final = "late" },
			errorContains: []string{`invalid cutoff "late"`},
		},
		{
			description:   "overflow pool not configured",
			mutate:        func(c *Config) { c.OverflowPool = "pool" },
			errorContains: []string{`overflowPool "pool" is not a configured allocation`},
		},
		{
			description: "duplicate and missing ids are all reported",
			mutate: func(c *Config) {
				c.Allocations = append(c.Allocations, Allocation{ID: "free"}, Allocation{})
			},
			errorContains: []string{`duplicate id "free"`, "allocations[2]: missing id"},
		},
		{
			description: "fractional cpu",
			mutate: func(c *Config) {
				c.Allocations[0].Capacity.CPU.SetMilli(1500)
			},
			errorContains: []string{"not a whole number"},
		},
		{
			description:   "unknown timezone",
			mutate:        func(c *Config) { c.Timezone = "Mars/Olympus" },
			errorContains: []string{"timezone"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			config := GetDefaultConfig()
			tc.mutate(config)
			err := config.Validate()
			if len(tc.errorContains) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, s := range tc.errorContains {
				assert.Contains(t, err.Error(), s)
			}
		})
	}
}
