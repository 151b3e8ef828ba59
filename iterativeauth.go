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
	"encoding/json"
	"fmt"

	"github.com/matrix-org/util"

	"github.com/matrix-org/stateres/spec"
)

// iterativeAuthCheck replays the ordered conflicted events on top of the
// given state snapshot. Each event is authorized against a view assembled
// from its own cited auth events, overridden by whatever the accumulated
// snapshot already holds for the state the event's auth rules need. Events
// that pass are folded into the snapshot so that later events see their
// effect; events that fail are dropped without failing the resolution.
//
// The snapshot is mutated in place and returned. An event in the replay
// sequence that cannot be fetched fails the whole resolution: the sequence
// was selected from events the provider vouched for, so a missing one means
// the store is lying to us.
func (r *resolver) iterativeAuthCheck(ctx context.Context, order []string, state StateMap) (StateMap, error) {
	logger := util.GetLogger(ctx)

	for _, eventID := range order {
		event, err := r.event(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("stateres: replaying %q: %w", eventID, err)
		}

		authState := make(map[StateKeyTuple]PDU, len(event.AuthEventIDs())+4)
		for _, authEventID := range event.AuthEventIDs() {
			authEvent, err := r.event(ctx, authEventID)
			if err != nil {
				// The event's own citations are best effort. If we can't
				// find one then the auth rules will judge the event on
				// whatever view we can assemble.
				continue
			}
			if authEvent.StateKey() == nil {
				continue
			}
			authState[StateKeyTuple{authEvent.Type(), *authEvent.StateKey()}] = authEvent
		}

		// The accumulated snapshot wins over the event's own citations for
		// every tuple the auth rules will look at. These events were
		// accepted into the snapshot earlier in the resolution, so failing
		// to load one now is fatal.
		for _, tuple := range stateNeededForAuth(event) {
			stateEventID, ok := state[tuple]
			if !ok {
				continue
			}
			stateEvent, err := r.event(ctx, stateEventID)
			if err != nil {
				return nil, fmt.Errorf("stateres: loading accepted state %q: %w", stateEventID, err)
			}
			authState[tuple] = stateEvent
		}

		if err := r.authorize(event, authState); err != nil {
			logger.WithError(err).WithField("event_id", eventID).Debug(
				"rejecting event during iterative auth checks",
			)
			continue
		}
		if stateKey := event.StateKey(); stateKey != nil {
			state[StateKeyTuple{event.Type(), *stateKey}] = eventID
		}
	}

	return state, nil
}

// stateNeededForAuth lists the state key tuples that the auth rules consult
// when authorizing the given event. This is the set of tuples for which the
// accumulated snapshot overrides the event's own auth event citations.
func stateNeededForAuth(event PDU) []StateKeyTuple {
	tuples := []StateKeyTuple{
		{spec.MRoomCreate, ""},
		{spec.MRoomPowerLevels, ""},
		{spec.MRoomMember, event.Sender()},
	}
	if event.Type() != spec.MRoomMember {
		return tuples
	}
	if stateKey := event.StateKey(); stateKey != nil && *stateKey != event.Sender() {
		tuples = append(tuples, StateKeyTuple{spec.MRoomMember, *stateKey})
	}
	membership, err := event.Membership()
	if err != nil {
		return tuples
	}
	switch membership {
	case spec.Join, spec.Invite, spec.Knock:
		tuples = append(tuples, StateKeyTuple{spec.MRoomJoinRules, ""})
	}

	var content MemberContent
	if err := json.Unmarshal(event.Content(), &content); err != nil {
		return tuples
	}
	if membership == spec.Invite && content.ThirdPartyInvite != nil {
		tuples = append(tuples, StateKeyTuple{
			spec.MRoomThirdPartyInvite, content.ThirdPartyInvite.Signed.Token,
		})
	}
	if content.AuthorisedVia != "" {
		tuples = append(tuples, StateKeyTuple{spec.MRoomMember, content.AuthorisedVia})
	}
	return tuples
}
