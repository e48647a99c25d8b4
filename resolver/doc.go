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

// Package resolver provides the name resolution contract used by logical
// DNS clusters: asynchronous, one-shot, cancellable lookups that deliver
// their result exactly once via callback.
//
// Two implementations are included. NewDNSResolver delegates to a
// [net.Resolver] and therefore to the system's name resolution.
// NewDirectResolver speaks DNS to a specific server. Custom
// implementations (service discovery, static fixtures for tests) only need
// to satisfy Resolver, or the simpler ResolveProber adapted via
// NewResolver.
package resolver
