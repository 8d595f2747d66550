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

import "github.com/cockroachdb/dataflow/engine/value"

// firstElem returns the lone element of a single-column row's Values,
// or value.None if the row has no payload. Column rows always carry
// exactly one Value; this helper spares every operator from repeating
// the same bounds check.
func firstElem(vs []value.Value) value.Value {
	if len(vs) == 0 {
		return value.None
	}
	return vs[0]
}
