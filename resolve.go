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
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-set/v3"
	"github.com/matrix-org/util"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/matrix-org/stateres/spec"
)

// A resolver holds the per-resolution working state: the event provider and
// authorizer supplied by the caller, the variant rules of the room version
// being resolved, and a cache of every event fetched so far. A resolver is
// used for a single Resolve call and then discarded.
type resolver struct {
	provider  EventProvider
	authorize Authorizer
	rules     StateResV2Rules

	mu          sync.Mutex
	events      map[string]PDU
	powerLevels map[string]*PowerLevelContent
}

// Resolve takes a list of state maps that disagree with each other, one
// recursive auth set per state map, and computes the state of the room
// after the disagreement using version 2 of the state resolution algorithm,
// in the variant belonging to the given room version.
//
// The provider supplies the events behind the IDs in the state maps and
// auth sets, plus any auth chain ancestors the resolution needs to walk.
// The authorize callback applies the room version's authorization rules.
//
// The output is deterministic: it does not depend on the order of the input
// state maps nor on goroutine scheduling, only on the set of inputs and the
// contents of the events. Resolving a second time with the output among the
// inputs returns the same output.
func Resolve(
	ctx context.Context,
	version RoomVersion,
	stateMaps []StateMap,
	authSets []AuthSet,
	provider EventProvider,
	authorize Authorizer,
) (StateMap, error) {
	algorithm, err := version.StateResAlgorithm()
	if err != nil {
		return nil, err
	}
	if algorithm != StateResV2 {
		return nil, UnsupportedRoomVersionError{Version: version}
	}
	rules, err := version.StateResV2Rules()
	if err != nil {
		return nil, err
	}
	if len(stateMaps) != len(authSets) {
		return nil, fmt.Errorf(
			"stateres: %d state maps with %d auth sets, need one auth set per state map",
			len(stateMaps), len(authSets),
		)
	}

	logger := util.GetLogger(ctx)

	unconflicted, conflicted := splitConflictedState(stateMaps)
	if len(conflicted) == 0 {
		// Everything agrees, so there is nothing to resolve.
		return copyStateMap(unconflicted), nil
	}
	logger.WithFields(logrus.Fields{
		"room_version":       version,
		"unconflicted_count": len(unconflicted),
		"conflicted_count":   len(conflicted),
	}).Debug("resolving conflicted state")

	r := &resolver{
		provider:    provider,
		authorize:   authorize,
		rules:       rules,
		events:      make(map[string]PDU),
		powerLevels: make(map[string]*PowerLevelContent),
	}

	// The full conflicted set starts as the conflicted candidates plus the
	// auth difference, minus anything the provider has never heard of. A
	// candidate dropped here simply can't win its tuple; the forks that
	// cited it carry other candidates that can.
	conflictedStates := conflicted.eventIDs()
	candidates := conflictedStates.Copy()
	candidates.InsertSlice(authDifference(authSets).Slice())
	fullConflictedSet := filterExisting(ctx, provider, candidates.Slice())

	if rules.ConsiderConflictedSubgraph {
		// The connector walks run between the state conflicted events only.
		// Auth difference members ride along in the replay set, but they are
		// not state conflicted and must not seed or terminate a walk.
		roots := set.New[string](conflictedStates.Size())
		for _, eventID := range conflictedStates.Slice() {
			if fullConflictedSet.Contains(eventID) {
				roots.Insert(eventID)
			}
		}
		subgraph := r.conflictedSubgraph(ctx, roots)
		fullConflictedSet.InsertSlice(subgraph.Slice())
	}

	powerOrder, err := r.sortPowerEvents(ctx, fullConflictedSet)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"full_conflicted_count": fullConflictedSet.Size(),
		"power_event_count":     len(powerOrder),
	}).Debug("sorted the power events")

	// First pass: replay the power events. Older room versions seed the
	// replay with the unconflicted state so that it can inform the auth
	// checks; newer ones start from nothing and let the power events prove
	// themselves against each other only.
	seed := make(StateMap)
	if !rules.BeginWithEmptyState {
		seed = copyStateMap(unconflicted)
	}
	partial, err := r.iterativeAuthCheck(ctx, powerOrder, seed)
	if err != nil {
		return nil, err
	}

	// Second pass: replay everything else in mainline order, anchored on
	// the power levels event the first pass accepted.
	anchorID := partial[StateKeyTuple{spec.MRoomPowerLevels, ""}]
	remaining := remainingAfter(fullConflictedSet, powerOrder)
	otherOrder, err := r.mainlineSort(ctx, anchorID, remaining)
	if err != nil {
		return nil, err
	}
	resolved, err := r.iterativeAuthCheck(ctx, otherOrder, partial)
	if err != nil {
		return nil, err
	}

	// The unconflicted state always wins, whatever the replays concluded
	// for tuples the inputs never disagreed on.
	for tuple, eventID := range unconflicted {
		resolved[tuple] = eventID
	}
	logger.WithField("resolved_count", len(resolved)).Debug("resolved the room state")
	return resolved, nil
}

// remainingAfter returns the members of the full conflicted set that the
// power ordering didn't cover, sorted for a deterministic starting point.
func remainingAfter(fullConflictedSet *set.Set[string], powerOrder []string) []string {
	leftover := fullConflictedSet.Copy()
	for _, eventID := range powerOrder {
		leftover.Remove(eventID)
	}
	remaining := leftover.Slice()
	// The mainline comparator orders these fully, but sorting here keeps
	// the fan-out below reproducible too.
	sort.Strings(remaining)
	return remaining
}

// event returns the event with the given ID, fetching it from the provider
// and caching it on first use. Safe for concurrent use.
func (r *resolver) event(ctx context.Context, eventID string) (PDU, error) {
	r.mu.Lock()
	event, ok := r.events[eventID]
	r.mu.Unlock()
	if ok {
		return event, nil
	}
	event, err := r.provider.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.events[eventID] = event
	r.mu.Unlock()
	return event, nil
}

// cachedEvent returns the event with the given ID if a previous fetch
// already brought it into the cache.
func (r *resolver) cachedEvent(eventID string) (PDU, bool) {
	r.mu.Lock()
	event, ok := r.events[eventID]
	r.mu.Unlock()
	return event, ok
}

// prefetch brings all of the given events into the cache, fetching up to
// the automatic width concurrently. Any single failure fails the prefetch.
func (r *resolver) prefetch(ctx context.Context, eventIDs []string) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(automaticWidth())
	for _, eventID := range eventIDs {
		group.Go(func() error {
			_, err := r.event(ctx, eventID)
			return err
		})
	}
	return group.Wait()
}

// powerLevelContent parses and caches the power level content of the given
// power levels event.
func (r *resolver) powerLevelContent(event PDU) (*PowerLevelContent, error) {
	r.mu.Lock()
	content, ok := r.powerLevels[event.EventID()]
	r.mu.Unlock()
	if ok {
		return content, nil
	}
	parsed, err := NewPowerLevelContentFromEvent(event)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.powerLevels[event.EventID()] = &parsed
	r.mu.Unlock()
	return &parsed, nil
}
