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

package resources

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/api/resource"
)

// ErrInvalidResources is returned for bundles with a negative field, or for
// request bundles asking for more GPUs than CPUs.
var ErrInvalidResources = errors.New("invalid resources")

// Bundle is an immutable (cpu, gpu, memory) triple. Memory is in bytes.
type Bundle struct {
	CPU    int64 `json:"cpu"`
	GPU    int64 `json:"gpu"`
	Memory int64 `json:"memory"`
}

// Zero is the empty bundle.
var Zero = Bundle{}

// New returns the bundle (cpu, gpu, memory).
func New(cpu, gpu, memory int64) Bundle {
	return Bundle{CPU: cpu, GPU: gpu, Memory: memory}
}

// Add returns the component-wise sum of b and o.
func (b Bundle) Add(o Bundle) Bundle {
	return Bundle{
		CPU:    b.CPU + o.CPU,
		GPU:    b.GPU + o.GPU,
		Memory: b.Memory + o.Memory,
	}
}

// Sub returns the component-wise difference of b and o. It panics if any
// field of the result would be negative: callers must check Covers first.
func (b Bundle) Sub(o Bundle) Bundle {
	if !b.Covers(o) {
		panic(fmt.Sprintf("resources: subtracting %s from %s drives a field negative", o, b))
	}
	return Bundle{
		CPU:    b.CPU - o.CPU,
		GPU:    b.GPU - o.GPU,
		Memory: b.Memory - o.Memory,
	}
}

// Covers reports whether every field of b is at least the matching field of
// requested. There is no partial credit.
func (b Bundle) Covers(requested Bundle) bool {
	return b.CPU >= requested.CPU &&
		b.GPU >= requested.GPU &&
		b.Memory >= requested.Memory
}

// LessEqual reports whether every field of b is at most the matching field of o.
func (b Bundle) LessEqual(o Bundle) bool {
	return o.Covers(b)
}

// IsZero reports whether all fields are zero.
func (b Bundle) IsZero() bool {
	return b == Zero
}

// Validate checks that all fields are non-negative.
func (b Bundle) Validate() error {
	var errs error
	if b.CPU < 0 {
		errs = multierr.Append(errs, fmt.Errorf("cpu %d is negative", b.CPU))
	}
	if b.GPU < 0 {
		errs = multierr.Append(errs, fmt.Errorf("gpu %d is negative", b.GPU))
	}
	if b.Memory < 0 {
		errs = multierr.Append(errs, fmt.Errorf("memory %d is negative", b.Memory))
	}
	if errs != nil {
		return errors.Wrapf(ErrInvalidResources, "%v", errs)
	}
	return nil
}

// ValidateRequest applies Validate plus the request-only rule that a job may
// not ask for more accelerators than cores.
func (b Bundle) ValidateRequest() error {
	if err := b.Validate(); err != nil {
		return err
	}
	if b.GPU > b.CPU {
		return errors.Wrapf(ErrInvalidResources, "gpu %d exceeds cpu %d", b.GPU, b.CPU)
	}
	return nil
}

func (b Bundle) String() string {
	return fmt.Sprintf("cpu=%d gpu=%d memory=%s", b.CPU, b.GPU,
		resource.NewQuantity(b.Memory, resource.BinarySI).String())
}

// FromQuantities builds a bundle from quantity values such as "4", "1" and
// "16Gi". CPU and GPU must be whole numbers.
func FromQuantities(cpu, gpu, memory resource.Quantity) (Bundle, error) {
	var errs error
	if cpu.MilliValue()%1000 != 0 {
		errs = multierr.Append(errs, fmt.Errorf("cpu %s is not a whole number", cpu.String()))
	}
	if gpu.MilliValue()%1000 != 0 {
		errs = multierr.Append(errs, fmt.Errorf("gpu %s is not a whole number", gpu.String()))
	}
	if errs != nil {
		return Zero, errors.Wrapf(ErrInvalidResources, "%v", errs)
	}
	b := New(cpu.Value(), gpu.Value(), memory.Value())
	if err := b.Validate(); err != nil {
		return Zero, err
	}
	return b, nil
}

// Parse is FromQuantities over string quantities.
func Parse(cpu, gpu, memory string) (Bundle, error) {
	var qs [3]resource.Quantity
	for i, s := range []string{cpu, gpu, memory} {
		if s == "" {
			s = "0"
		}
		q, err := resource.ParseQuantity(s)
		if err != nil {
			return Zero, errors.Wrapf(ErrInvalidResources, "quantity %q: %v", s, err)
		}
		qs[i] = q
	}
	return FromQuantities(qs[0], qs[1], qs[2])
}
