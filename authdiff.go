// Copyright 2025 The Matrix.org Foundation C.I.C.
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

package stateres

import (
	"context"
	"sync"

	"github.com/hashicorp/go-set/v3"
	"golang.org/x/sync/errgroup"
)

// authDifference returns the event IDs that appear in at least one of the
// input auth sets but not in all of them. These are the authorization
// ancestors that only some forks know about, which is exactly what makes
// them interesting to the conflicted resolution passes.
func authDifference(authSets []AuthSet) *set.Set[string] {
	difference := set.New[string](0)
	if len(authSets) == 0 {
		return difference
	}
	union := authSets[0].Copy()
	common := authSets[0].Copy()
	for _, authSet := range authSets[1:] {
		union.InsertSlice(authSet.Slice())
		for _, eventID := range common.Slice() {
			if !authSet.Contains(eventID) {
				common.Remove(eventID)
			}
		}
	}
	for _, eventID := range union.Slice() {
		if !common.Contains(eventID) {
			difference.Insert(eventID)
		}
	}
	return difference
}

// filterExisting returns the subset of candidate event IDs that the provider
// can vouch for. An event referenced by a fork but never received by this
// server cannot be reasoned about, so it is silently dropped rather than
// failing the resolution. Existence probes run concurrently up to the
// automatic width.
func filterExisting(ctx context.Context, provider EventProvider, candidates []string) *set.Set[string] {
	existing := set.New[string](len(candidates))
	var mu sync.Mutex
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(automaticWidth())
	for _, eventID := range candidates {
		group.Go(func() error {
			if provider.EventExists(ctx, eventID) {
				mu.Lock()
				existing.Insert(eventID)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait() // the probes never return errors
	return existing
}
