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
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/linskybing/faculty-admission/internal/resources"
)

// Default daily cutoffs.
const (
	DefaultSelfServiceCutoff = "18:00"
	DefaultFinalCutoff       = "23:55"
)

// Allocation defines a named capacity pool, for example a faculty, or the
// shared overflow pool.
type Allocation struct {
	// ID is the stable identifier requests target.
	ID string `json:"id" yaml:"id"`
	// Name is a human readable label.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Capacity is the daily base capacity. It is set by the external
	// redistribution process and seeds every new ledger day.
	Capacity Capacity `json:"capacity" yaml:"capacity"`
}

// Capacity holds resource quantities, e.g. {cpu: "64", gpu: "8", memory: 256Gi}.
type Capacity struct {
	CPU    resource.Quantity `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	GPU    resource.Quantity `json:"gpu,omitempty" yaml:"gpu,omitempty"`
	Memory resource.Quantity `json:"memory,omitempty" yaml:"memory,omitempty"`
}

// Bundle converts the capacity into a resource bundle.
func (c Capacity) Bundle() (resources.Bundle, error) {
	return resources.FromQuantities(c.CPU, c.GPU, c.Memory)
}

// GetDefaultConfig returns a config with a single empty overflow pool.
func GetDefaultConfig() *Config {
	c := &Config{
		Version:      Version,
		OverflowPool: "free",
		Allocations: []Allocation{
			{ID: "free", Name: "Shared overflow pool"},
		},
	}
	c.SetDefaults()
	return c
}
