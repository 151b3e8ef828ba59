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

// mainlineSort orders the remaining conflicted events by their closeness to
// the mainline, the chain of m.room.power_levels events reachable from the
// anchor. Events anchored on an older power levels event sort first, ties
// broken by ascending origin_server_ts and then ascending event ID.
//
// The anchor is the power levels event accepted by the first replay pass, so
// a failure to load any event on the mainline itself is fatal. Events whose
// mainline position cannot be computed because the event or one of its
// ancestors can't be fetched are dropped from the ordering with a warning.
func (r *resolver) mainlineSort(ctx context.Context, anchorID string, remaining []string) ([]string, error) {
	positions, err := r.mainlinePositions(ctx, anchorID)
	if err != nil {
		return nil, err
	}

	logger := util.GetLogger(ctx)
	ordered := make(conflictedOtherList, 0, len(remaining))
	var mu sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(automaticWidth())
	for _, eventID := range remaining {
		group.Go(func() error {
			event, err := r.event(gctx, eventID)
			if err != nil {
				logger.WithError(err).WithField("event_id", eventID).Warn(
					"dropping unfetchable event from mainline ordering",
				)
				return nil
			}
			position, err := r.mainlinePosition(gctx, event, positions)
			if err != nil {
				logger.WithError(err).WithField("event_id", eventID).Warn(
					"dropping event with unresolvable mainline position",
				)
				return nil
			}
			mu.Lock()
			ordered = append(ordered, &conflictedOtherEvent{
				mainlinePosition: position,
				originServerTS:   event.OriginServerTS(),
				eventID:          eventID,
				event:            event,
			})
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait() // position failures drop the event, never the resolution

	sort.Sort(ordered)
	result := make([]string, 0, len(ordered))
	for _, entry := range ordered {
		result = append(result, entry.eventID)
	}
	return result, nil
}

// mainlinePositions walks backwards from the anchor along power levels auth
// events and assigns each mainline member its position, with the oldest
// event at position 0. An empty anchor produces an empty mainline, leaving
// every event at the default position.
func (r *resolver) mainlinePositions(ctx context.Context, anchorID string) (map[string]int, error) {
	positions := make(map[string]int)
	if anchorID == "" {
		return positions, nil
	}

	var mainline []string
	visited := set.New[string](8)
	for eventID := anchorID; eventID != ""; {
		if !visited.Insert(eventID) {
			util.GetLogger(ctx).WithField("event_id", eventID).Warn(
				"auth chain cycle detected on the mainline",
			)
			break
		}
		event, err := r.event(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("stateres: walking the mainline at %q: %w", eventID, err)
		}
		mainline = append(mainline, eventID)
		eventID, err = r.powerLevelsAuthEvent(ctx, event)
		if err != nil {
			return nil, fmt.Errorf("stateres: walking the mainline below %q: %w", mainline[len(mainline)-1], err)
		}
	}

	// The walk collected the mainline newest first; positions count up from
	// the oldest so that a bigger position means closer to the anchor.
	for index, eventID := range mainline {
		positions[eventID] = len(mainline) - 1 - index
	}

	util.GetLogger(ctx).WithFields(logrus.Fields{
		"anchor":         anchorID,
		"mainline_depth": len(mainline),
	}).Debug("computed the mainline")
	return positions, nil
}

// mainlinePosition finds the position of the closest mainline event to the
// given event by walking its power levels auth events until one of them is
// on the mainline. Events with no mainline ancestor get position 0, sorting
// before everything anchored on the mainline proper.
func (r *resolver) mainlinePosition(ctx context.Context, event PDU, positions map[string]int) (int, error) {
	visited := set.New[string](8)
	for {
		eventID := event.EventID()
		if !visited.Insert(eventID) {
			return 0, AuthChainCycleError{EventID: eventID}
		}
		if position, ok := positions[eventID]; ok {
			return position, nil
		}
		nextID, err := r.powerLevelsAuthEvent(ctx, event)
		if err != nil {
			return 0, err
		}
		if nextID == "" {
			return 0, nil
		}
		next, err := r.event(ctx, nextID)
		if err != nil {
			return 0, err
		}
		event = next
	}
}

// powerLevelsAuthEvent returns the event ID of the power levels event among
// the given event's auth events, or the empty string if there isn't one.
// A well formed event cites at most one, so the first match wins.
func (r *resolver) powerLevelsAuthEvent(ctx context.Context, event PDU) (string, error) {
	for _, authEventID := range event.AuthEventIDs() {
		authEvent, err := r.event(ctx, authEventID)
		if err != nil {
			return "", err
		}
		if authEvent.Type() == spec.MRoomPowerLevels && authEvent.StateKeyEquals("") {
			return authEventID, nil
		}
	}
	return "", nil
}
