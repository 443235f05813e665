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
	"errors"
	"testing"
)

func TestCovers(t *testing.T) {
	available := New(4, 2, 100)
	tests := []struct {
		name      string
		requested Bundle
		expected  bool
	}{
		{"enough of all", New(1, 1, 10), true},
		{"exactly matching", New(4, 2, 100), true},
		{"not enough cpu", New(5, 1, 10), false},
		{"not enough gpu", New(1, 3, 10), false},
		{"not enough memory", New(1, 1, 101), false},
		{"zero", Zero, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := available.Covers(tt.requested); got != tt.expected {
				t.Fatalf("Covers(%s) = %v, expected %v", tt.requested, got, tt.expected)
			}
		})
	}
}

func TestAddSub(t *testing.T) {
	a := New(10, 4, 1024)
	b := New(3, 1, 24)
	if got := a.Add(b); got != New(13, 5, 1048) {
		t.Fatalf("unexpected sum: %s", got)
	}
	if got := a.Sub(b); got != New(7, 3, 1000) {
		t.Fatalf("unexpected difference: %s", got)
	}
	if !a.Sub(a).IsZero() {
		t.Fatalf("expected a-a to be zero")
	}
}

func TestSubPanicsWhenNegative(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Sub to panic")
		}
	}()
	_ = New(1, 0, 0).Sub(New(0, 1, 0))
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		bundle  Bundle
		wantErr bool
	}{
		{"valid", New(4, 2, 10), false},
		{"gpu equals cpu", New(2, 2, 0), false},
		{"zero", Zero, false},
		{"negative cpu", New(-1, 0, 0), true},
		{"negative memory", New(1, 0, -5), true},
		{"gpu exceeds cpu", New(1, 2, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bundle.ValidateRequest()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidResources) {
				t.Fatalf("expected ErrInvalidResources, got %v", err)
			}
		})
	}
}

func TestValidateAllowsGPUAboveCPUForTotals(t *testing.T) {
	if err := New(1, 8, 0).Validate(); err != nil {
		t.Fatalf("ledger totals may carry more gpus than cpus: %v", err)
	}
}

func TestParse(t *testing.T) {
	b, err := Parse("8", "2", "16Gi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b != New(8, 2, 16*1024*1024*1024) {
		t.Fatalf("unexpected bundle: %s", b)
	}
	if _, err := Parse("500m", "0", "1Gi"); !errors.Is(err, ErrInvalidResources) {
		t.Fatalf("expected fractional cpu to be rejected, got %v", err)
	}
	if _, err := Parse("1", "0", "lots"); !errors.Is(err, ErrInvalidResources) {
		t.Fatalf("expected malformed quantity to be rejected, got %v", err)
	}
	if _, err := Parse("-2", "0", "0"); !errors.Is(err, ErrInvalidResources) {
		t.Fatalf("expected negative cpu to be rejected, got %v", err)
	}
	if b, err := Parse("", "", ""); err != nil || !b.IsZero() {
		t.Fatalf("expected empty quantities to parse as zero, got %s, %v", b, err)
	}
}
