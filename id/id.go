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

// Package id is the single place entity identifiers are minted and parsed.
package id

import "github.com/google/uuid"

// Nil is the identifier used as the starting point for ascending cursor
// listings when no explicit cursor is given.
var Nil = uuid.Nil.String()

// New mints a fresh version-4 UUID, rendered as its canonical string form.
func New() string {
	return uuid.New().String()
}

// Valid reports whether s parses as a UUID of any version.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Compare orders two UUID strings lexicographically over their canonical
// byte representation, matching the ordering Postgres uses for a uuid
// column so in-memory and in-database cursor comparisons agree.
func Compare(a, b string) int {
	ua, errA := uuid.Parse(a)
	ub, errB := uuid.Parse(b)
	if errA != nil || errB != nil {
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	}
	ba, bb := ua[:], ub[:]
	for i := range ba {
		if ba[i] != bb[i] {
			if ba[i] < bb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
