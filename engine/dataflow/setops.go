// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package dataflow

import (
	"github.com/cockroachdb/dataflow/engine/key"
)

// Restrict returns the subset of universe whose keys also appear in
// other, restrict operator.
func (g *Graph) Restrict(universe, other UniverseHandle) (UniverseHandle, error) {
	base, err := g.Universe(universe)
	if err != nil {
		return 0, err
	}
	mask, err := g.Universe(other)
	if err != nil {
		return 0, err
	}
	keep := keySetAsOf(mask)
	var out []Row
	for _, r := range base.Rows() {
		if keep[r.Key] {
			out = append(out, r)
		}
	}
	return g.newUniverseFromCollection(NewCollection(out)), nil
}

// Intersect returns the universe of keys present in every one of
// universes, intersect operator.
func (g *Graph) Intersect(universes...UniverseHandle) (UniverseHandle, error) {
	if len(universes) == 0 {
		return g.newUniverseFromCollection(Empty()), nil
	}
	base, err := g.Universe(universes[0])
	if err != nil {
		return 0, err
	}
	sets := make([]map[key.Key]bool, 0, len(universes)-1)
	for _, u := range universes[1:] {
		c, err := g.Universe(u)
		if err != nil {
			return 0, err
		}
		sets = append(sets, keySetAsOf(c))
	}
	var out []Row
	for _, r := range base.Rows() {
		inAll := true
		for _, s := range sets {
			if !s[r.Key] {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, r)
		}
	}
	return g.newUniverseFromCollection(NewCollection(out)), nil
}

// Subtract returns the subset of universe whose keys do NOT appear in
// other, subtract operator.
func (g *Graph) Subtract(universe, other UniverseHandle) (UniverseHandle, error) {
	base, err := g.Universe(universe)
	if err != nil {
		return 0, err
	}
	other_, err := g.Universe(other)
	if err != nil {
		return 0, err
	}
	drop := keySetAsOf(other_)
	var out []Row
	for _, r := range base.Rows() {
		if !drop[r.Key] {
			out = append(out, r)
		}
	}
	return g.newUniverseFromCollection(NewCollection(out)), nil
}

// Union merges universes into one universe, union
// operator; a key present in more than one input is taken from the
// first input that holds it, so each key appears once in the result.
func (g *Graph) Union(universes...UniverseHandle) (UniverseHandle, error) {
	seen := make(map[key.Key]bool)
	var out []Row
	for _, u := range universes {
		c, err := g.Universe(u)
		if err != nil {
			return 0, err
		}
		for _, r := range c.Rows() {
			if !seen[r.Key] {
				out = append(out, r)
			}
		}
		for k := range keySetAsOf(c) {
			seen[k] = true
		}
	}
	return g.newUniverseFromCollection(NewCollection(out)), nil
}

// keySetAsOf returns the set of keys present (net diff 1) in c as of
// its latest timestamp.
func keySetAsOf(c *Collection) map[key.Key]bool {
	rows, _ := c.Consolidated()
	set := make(map[key.Key]bool, len(rows))
	for _, r := range rows {
		set[r.Key] = true
	}
	return set
}
