// Copyright 2024-2025 Proxium, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logicaldns implements a "logical DNS" upstream cluster for a
// proxy data plane: a single long-lived upstream target whose concrete
// network address is re-resolved on a fixed interval.
//
// The cluster owns a control loop that drives a resolve → compare →
// publish → reschedule cycle. When a resolution produces a materially
// different address, the new address is broadcast into a private cache on
// each worker loop, so connection creation reads only memory owned by the
// calling worker and never takes a lock. The upstream is represented by a
// single stable LogicalHost whose identity survives address changes; only
// its health-check target and the per-worker dial addresses move.
//
// Name resolution itself is pluggable via the resolver subpackage, and
// load balancing and active health checking are external collaborators
// that the cluster notifies through the Lifecycle interface.
package logicaldns
