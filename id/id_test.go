// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package id

import "testing"

func TestNewProducesValidUUID(t *testing.T) {
	got := New()
	if !Valid(got) {
		t.Fatalf("New() produced invalid id: %q", got)
	}
}

func TestNewIsUnique(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatalf("expected distinct ids, got two copies of %q", a)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "not-a-uuid", "12345"} {
		if Valid(s) {
			t.Errorf("Valid(%q) = true, want false", s)
		}
	}
}

func TestCompareOrdering(t *testing.T) {
	if Compare(Nil, Nil) != 0 {
		t.Errorf("Compare(Nil, Nil) = %d, want 0", Compare(Nil, Nil))
	}

	low := "00000000-0000-0000-0000-000000000001"
	high := "00000000-0000-0000-0000-000000000002"
	if Compare(low, high) >= 0 {
		t.Errorf("Compare(low, high) = %d, want negative", Compare(low, high))
	}
	if Compare(high, low) <= 0 {
		t.Errorf("Compare(high, low) = %d, want positive", Compare(high, low))
	}
}
