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
	"container/heap"
	"context"

	"github.com/hashicorp/go-set/v3"
	"github.com/matrix-org/util"

	"github.com/matrix-org/stateres/spec"
)

// powerEventKind classifies an event by its ability to affect authorization
// outcomes. The classification is a closed set: every component that cares
// whether an event is pivotal asks here rather than matching type strings
// on its own.
type powerEventKind int

const (
	// ordinaryEvent cannot change what other events are allowed to do.
	ordinaryEvent powerEventKind = iota
	// powerLevelsEvent is an m.room.power_levels event with an empty state key.
	powerLevelsEvent
	// joinRulesEvent is an m.room.join_rules event with an empty state key.
	joinRulesEvent
	// forcedMembershipEvent is a leave or ban imposed on a user by someone
	// else, i.e. a kick or a ban by an admin or moderator.
	forcedMembershipEvent
)

// classifyPowerEvent works out which kind of power event this is, if any.
func classifyPowerEvent(event PDU) powerEventKind {
	switch event.Type() {
	case spec.MRoomPowerLevels:
		if event.StateKeyEquals("") {
			return powerLevelsEvent
		}
	case spec.MRoomJoinRules:
		if event.StateKeyEquals("") {
			return joinRulesEvent
		}
	case spec.MRoomMember:
		// Membership events must not have an empty state key, and are only
		// pivotal if the sender does not match the state key, i.e. because
		// the change is imposed by an admin or moderator.
		if event.StateKey() == nil || event.StateKeyEquals("") {
			break
		}
		if event.StateKeyEquals(event.Sender()) {
			break
		}
		membership, err := event.Membership()
		if err != nil {
			break
		}
		if membership == spec.Leave || membership == spec.Ban {
			return forcedMembershipEvent
		}
	}
	return ordinaryEvent
}

// isPowerEvent returns true if the event meets the criteria for being sorted
// by the reverse topological power ordering. If not then the event will be
// mainline sorted instead.
func isPowerEvent(event PDU) bool {
	return classifyPowerEvent(event) != ordinaryEvent
}

// sortPowerEvents selects the power events from the full conflicted set,
// enlarges the selection with each power event's auth chain ancestors that
// also belong to the full conflicted set, and sorts the result into the
// reverse topological power ordering. The returned list is the replay
// sequence for the first iterative auth checks pass, so a member that can't
// be fetched at this point is a hard failure.
func (r *resolver) sortPowerEvents(ctx context.Context, fullConflictedSet *set.Set[string]) ([]string, error) {
	if err := r.prefetch(ctx, fullConflictedSet.Slice()); err != nil {
		return nil, err
	}

	// Seed the graph walk with the power events themselves.
	var pending []string
	for _, eventID := range fullConflictedSet.Slice() {
		event, ok := r.cachedEvent(eventID)
		if !ok {
			return nil, MissingEventError{EventID: eventID}
		}
		if isPowerEvent(event) {
			pending = append(pending, eventID)
		}
	}

	// Pull in each selection member's conflicted auth chain ancestors,
	// recording the dependency edges between members of the selection as we
	// go. The chain is walked through ancestors outside the full conflicted
	// set too: a conflicted ancestor still orders the member when the only
	// route to it runs through common history. Each branch of the walk
	// stops at the first in-set ancestor it meets, whose own graph entry
	// carries the edges below it.
	graph := make(map[string]*set.Set[string], len(pending))
	for len(pending) > 0 {
		eventID := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if _, ok := graph[eventID]; ok {
			continue
		}
		event, ok := r.cachedEvent(eventID)
		if !ok {
			return nil, MissingEventError{EventID: eventID}
		}
		parents := set.New[string](0)
		visited := set.New[string](0)
		chain := append([]string(nil), event.AuthEventIDs()...)
		for len(chain) > 0 {
			ancestorID := chain[len(chain)-1]
			chain = chain[:len(chain)-1]
			if !visited.Insert(ancestorID) {
				continue
			}
			if fullConflictedSet.Contains(ancestorID) {
				parents.Insert(ancestorID)
				pending = append(pending, ancestorID)
				continue
			}
			ancestor, err := r.event(ctx, ancestorID)
			if err != nil {
				// Common history we don't hold can't contribute edges.
				continue
			}
			chain = append(chain, ancestor.AuthEventIDs()...)
		}
		graph[eventID] = parents
	}

	return r.kahnsAlgorithmUsingAuthEvents(ctx, graph), nil
}

// kahnsAlgorithmUsingAuthEvents topologically sorts the dependency graph so
// that auth ancestors come first, breaking ties between ready events with
// the power level heap. Events that never become ready cite each other in a
// cycle; they can only have been crafted maliciously, so they are treated as
// failing authorization and dropped from the ordering rather than looped on.
func (r *resolver) kahnsAlgorithmUsingAuthEvents(ctx context.Context, graph map[string]*set.Set[string]) []string {
	remaining := make(map[string]int, len(graph))
	dependents := make(map[string][]string, len(graph))
	for eventID, parents := range graph {
		remaining[eventID] = parents.Size()
		for _, parentID := range parents.Slice() {
			dependents[parentID] = append(dependents[parentID], eventID)
		}
	}

	ready := make(conflictedPowerLevelHeap, 0, len(graph))
	heap.Init(&ready)
	for eventID, count := range remaining {
		if count == 0 {
			heap.Push(&ready, r.wrapPowerLevelEvent(ctx, eventID))
		}
	}

	sorted := make([]string, 0, len(graph))
	for ready.Len() > 0 {
		next := heap.Pop(&ready).(*conflictedPowerLevelEvent)
		sorted = append(sorted, next.eventID)
		for _, dependentID := range dependents[next.eventID] {
			remaining[dependentID]--
			if remaining[dependentID] == 0 {
				heap.Push(&ready, r.wrapPowerLevelEvent(ctx, dependentID))
			}
		}
	}

	if len(sorted) < len(graph) {
		logger := util.GetLogger(ctx)
		for eventID, count := range remaining {
			if count > 0 {
				logger.WithError(AuthChainCycleError{EventID: eventID}).Warn(
					"dropping power event from cyclic auth chain",
				)
			}
		}
	}

	return sorted
}

// wrapPowerLevelEvent precomputes the sort key for one member of the power
// event selection.
func (r *resolver) wrapPowerLevelEvent(ctx context.Context, eventID string) *conflictedPowerLevelEvent {
	event, _ := r.cachedEvent(eventID)
	return &conflictedPowerLevelEvent{
		powerLevel:     r.getPowerLevelFromAuthEvents(ctx, event),
		originServerTS: event.OriginServerTS(),
		eventID:        eventID,
		event:          event,
	}
}

// getPowerLevelFromAuthEvents tries to determine the effective power level
// of the sender at the time that the given event was sent, based on the
// power levels event among its auth events. This is used in the Kahn's
// algorithm tiebreak: an event whose power cannot be deduced sorts with the
// default user level.
func (r *resolver) getPowerLevelFromAuthEvents(ctx context.Context, event PDU) int64 {
	for _, authEventID := range event.AuthEventIDs() {
		authEvent, err := r.event(ctx, authEventID)
		if err != nil {
			continue
		}
		if authEvent.Type() != spec.MRoomPowerLevels || !authEvent.StateKeyEquals("") {
			continue
		}
		content, err := r.powerLevelContent(authEvent)
		if err != nil {
			return 0
		}
		return content.UserLevel(event.Sender())
	}
	return 0
}

// ReverseTopologicalOrdering sorts the given events so that every event
// appears after the auth events that it cites, applying the reverse
// topological power ordering tiebreak between events the graph leaves
// unordered. Unlike the resolver's internal ordering this helper works
// purely over the supplied slice, so callers can order a batch of events
// for replay without an event provider.
func ReverseTopologicalOrdering(events []PDU) []PDU {
	eventMap := make(map[string]PDU, len(events))
	for _, event := range events {
		eventMap[event.EventID()] = event
	}

	powerLevels := make(map[string]*PowerLevelContent)
	senderLevel := func(event PDU) int64 {
		for _, authEventID := range event.AuthEventIDs() {
			authEvent, ok := eventMap[authEventID]
			if !ok || authEvent.Type() != spec.MRoomPowerLevels || !authEvent.StateKeyEquals("") {
				continue
			}
			content, ok := powerLevels[authEventID]
			if !ok {
				parsed, err := NewPowerLevelContentFromEvent(authEvent)
				if err != nil {
					return 0
				}
				content = &parsed
				powerLevels[authEventID] = content
			}
			return content.UserLevel(event.Sender())
		}
		return 0
	}

	remaining := make(map[string]int, len(events))
	dependents := make(map[string][]string, len(events))
	for _, event := range events {
		eventID := event.EventID()
		if _, ok := remaining[eventID]; !ok {
			remaining[eventID] = 0
		}
		for _, authEventID := range event.AuthEventIDs() {
			if _, ok := eventMap[authEventID]; !ok {
				continue
			}
			remaining[eventID]++
			dependents[authEventID] = append(dependents[authEventID], eventID)
		}
	}

	wrap := func(eventID string) *conflictedPowerLevelEvent {
		event := eventMap[eventID]
		return &conflictedPowerLevelEvent{
			powerLevel:     senderLevel(event),
			originServerTS: event.OriginServerTS(),
			eventID:        eventID,
			event:          event,
		}
	}

	ready := make(conflictedPowerLevelHeap, 0, len(events))
	heap.Init(&ready)
	for eventID, count := range remaining {
		if count == 0 {
			heap.Push(&ready, wrap(eventID))
		}
	}

	result := make([]PDU, 0, len(events))
	for ready.Len() > 0 {
		next := heap.Pop(&ready).(*conflictedPowerLevelEvent)
		result = append(result, next.event)
		for _, dependentID := range dependents[next.eventID] {
			remaining[dependentID]--
			if remaining[dependentID] == 0 {
				heap.Push(&ready, wrap(dependentID))
			}
		}
	}
	return result
}
