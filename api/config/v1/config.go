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
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"sigs.k8s.io/yaml"
)

// Version indicates the version of the 'Config' struct used to hold configuration information.
const Version = "v1"

// Config is a versioned struct used to hold configuration information.
type Config struct {
	Version string `json:"version" yaml:"version"`
	// Flags holds values that may also be set on the command line.
	Flags Flags `json:"flags,omitempty" yaml:"flags,omitempty"`
	// Timezone is the IANA name the daily cutoffs are evaluated in.
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	Cutoffs  Cutoffs `json:"cutoffs,omitempty" yaml:"cutoffs,omitempty"`
	// OverflowPool is the id of the allocation that receives released capacity.
	OverflowPool string       `json:"overflowPool" yaml:"overflowPool"`
	Allocations  []Allocation `json:"allocations" yaml:"allocations"`
}

// Flags holds the full list of flags used to configure the engine.
type Flags struct {
	StateDir       *string `json:"stateDir,omitempty" yaml:"stateDir,omitempty"`
	MetricsAddress *string `json:"metricsAddress,omitempty" yaml:"metricsAddress,omitempty"`
}

// Cutoffs are the two daily times-of-day, in HH:MM, partitioning each day
// into the self-service, overflow-only and closed periods.
type Cutoffs struct {
	SelfService string `json:"selfService,omitempty" yaml:"selfService,omitempty"`
	Final       string `json:"final,omitempty" yaml:"final,omitempty"`
}

// NewConfig builds out a Config struct from a config file.
func NewConfig(configFile string) (*Config, error) {
	config, err := parseConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("unable to parse config file: %v", err)
	}
	if config.Version == "" {
		config.Version = Version
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// parseConfig parses a config file as either YAML or JSON.
func parseConfig(configFile string) (*Config, error) {
	reader, err := os.Open(configFile)
	if err != nil {
		return nil, fmt.Errorf("error opening config file: %v", err)
	}
	defer reader.Close()

	return parseConfigFrom(reader)
}

func parseConfigFrom(reader io.Reader) (*Config, error) {
	var err error
	var configYaml []byte

	configYaml, err = io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read error: %v", err)
	}

	var config Config
	err = yaml.Unmarshal(configYaml, &config)
	if err != nil {
		return nil, fmt.Errorf("unmarshal error: %v", err)
	}

	return &config, nil
}

// SetDefaults fills in the cutoffs and timezone when they are unset.
func (c *Config) SetDefaults() {
	if c.Cutoffs.SelfService == "" {
		c.Cutoffs.SelfService = DefaultSelfServiceCutoff
	}
	if c.Cutoffs.Final == "" {
		c.Cutoffs.Final = DefaultFinalCutoff
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
}

// Validate checks the whole config and reports every problem found.
func (c *Config) Validate() error {
	var errs error
	if c.Version != Version {
		errs = multierr.Append(errs, fmt.Errorf("unknown version: %q", c.Version))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("timezone %q: %v", c.Timezone, err))
	}
	first, err1 := ParseCutoff(c.Cutoffs.SelfService)
	if err1 != nil {
		errs = multierr.Append(errs, err1)
	}
	final, err2 := ParseCutoff(c.Cutoffs.Final)
	if err2 != nil {
		errs = multierr.Append(errs, err2)
	}
	if err1 == nil && err2 == nil && (first == 0 || final <= first) {
		errs = multierr.Append(errs, fmt.Errorf("cutoff %s must be after %s and after midnight", c.Cutoffs.Final, c.Cutoffs.SelfService))
	}

	seen := make(map[string]bool)
	for i, a := range c.Allocations {
		if a.ID == "" {
			errs = multierr.Append(errs, fmt.Errorf("allocations[%d]: missing id", i))
			continue
		}
		if seen[a.ID] {
			errs = multierr.Append(errs, fmt.Errorf("allocations[%d]: duplicate id %q", i, a.ID))
		}
		seen[a.ID] = true
		if _, err := a.Capacity.Bundle(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("allocation %q: %v", a.ID, err))
		}
	}
	if c.OverflowPool == "" {
		errs = multierr.Append(errs, fmt.Errorf("overflowPool is required"))
	} else if !seen[c.OverflowPool] {
		errs = multierr.Append(errs, fmt.Errorf("overflowPool %q is not a configured allocation", c.OverflowPool))
	}

	if errs != nil {
		return errors.Wrap(errs, "invalid config")
	}
	return nil
}

// Location returns the loaded timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// CutoffDurations returns both cutoffs as offsets from midnight.
func (c *Config) CutoffDurations() (time.Duration, time.Duration, error) {
	first, err := ParseCutoff(c.Cutoffs.SelfService)
	if err != nil {
		return 0, 0, err
	}
	final, err := ParseCutoff(c.Cutoffs.Final)
	if err != nil {
		return 0, 0, err
	}
	return first, final, nil
}

// ParseCutoff parses an HH:MM time of day into an offset from midnight.
func ParseCutoff(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff %q: want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
