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
	"github.com/matrix-org/util"
	"github.com/oleiade/lane/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// subgraphState is shared between all concurrent subgraph walks. The two
// sets coordinate the walks: a node is only explored once globally, and the
// confirmed subgraph grows as walks discover paths between conflicted
// events. The mutex is held for single check-and-insert operations only,
// never across an event fetch.
type subgraphState struct {
	mu       sync.Mutex
	seen     *set.Set[string]
	subgraph *set.Set[string]
}

// A walkFrame holds the auth event IDs still to be visited beneath one node
// of the depth-first walk. Frames live on an explicit stack because auth
// chains can be arbitrarily deep and the walk must not exhaust the call
// stack on a hostile room.
type walkFrame []string

// conflictedSubgraph discovers the events lying on auth chain paths between
// conflicted events. The walks start from every conflicted event and run
// concurrently up to the automatic width; whenever a walk reaches an event
// that is already part of the subgraph, was already seen by another walk, or
// is itself conflicted, the whole path walked so far is a connector chain
// and joins the subgraph. Events that cannot be fetched terminate their
// branch quietly.
func (r *resolver) conflictedSubgraph(ctx context.Context, conflicted *set.Set[string]) *set.Set[string] {
	state := &subgraphState{
		seen:     set.New[string](conflicted.Size()),
		subgraph: set.New[string](conflicted.Size()),
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(automaticWidth())
	for _, eventID := range conflicted.Slice() {
		group.Go(func() error {
			r.subgraphDescent(ctx, eventID, conflicted, state)
			return nil
		})
	}
	_ = group.Wait() // descents absorb their own failures

	util.GetLogger(ctx).WithFields(logrus.Fields{
		"input_events":  conflicted.Size(),
		"seen_events":   state.seen.Size(),
		"output_events": state.subgraph.Size(),
	}).Debug("conflicted subgraph state")

	return state.subgraph
}

// subgraphDescent walks backwards along auth_events from one conflicted
// event, maintaining the current path explicitly. Each entry pushed onto the
// frame stack owns exactly one path entry; the path entry is removed either
// immediately, when the node turns out to be a leaf or a stopping point, or
// when the node's child frame is exhausted.
func (r *resolver) subgraphDescent(ctx context.Context, conflictedEventID string, conflicted *set.Set[string], state *subgraphState) {
	path := make([]string, 0, 48)
	stack := lane.NewStack(walkFrame{conflictedEventID})

	for stack.Size() > 0 {
		frame, _ := stack.Pop()
		if len(frame) == 0 {
			// The frame is exhausted, so remove its owner from the path.
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
			continue
		}
		eventID := frame[len(frame)-1]
		stack.Push(frame[:len(frame)-1])
		path = append(path, eventID)

		if r.visitSubgraphNode(ctx, eventID, path, conflicted, state) {
			if event, ok := r.cachedEvent(eventID); ok && len(event.AuthEventIDs()) > 0 {
				stack.Push(walkFrame(event.AuthEventIDs()))
				continue
			}
		}
		path = path[:len(path)-1]
	}
}

// visitSubgraphNode applies the stopping rules to one node of the walk and
// reports whether the walk should descend into the node's auth events.
func (r *resolver) visitSubgraphNode(ctx context.Context, eventID string, path []string, conflicted *set.Set[string], state *subgraphState) bool {
	connector := len(path) > 1

	state.mu.Lock()
	if state.subgraph.Contains(eventID) {
		// The node is already a confirmed subgraph member, so everything on
		// the path down to it is a connector chain too.
		if connector {
			state.subgraph.InsertSlice(path)
		}
		state.mu.Unlock()
		return false
	}
	state.mu.Unlock()

	// An event that cites itself as an ancestor can only be malicious.
	// Stop the descent here rather than looping; the event will separately
	// fail its auth replay.
	for _, ancestorID := range path[:len(path)-1] {
		if ancestorID == eventID {
			util.GetLogger(ctx).WithField("event_id", eventID).Warn(
				"auth chain cycle detected during subgraph walk",
			)
			return false
		}
	}

	state.mu.Lock()
	if !state.seen.Insert(eventID) {
		// Another walk has been here, which means a different conflicted
		// event also reaches this node: the current path is a connector.
		if connector {
			state.subgraph.InsertSlice(path)
		}
		state.mu.Unlock()
		return false
	}
	if connector && conflicted.Contains(eventID) {
		// The walk has reached a second conflicted event, so the path
		// between the two belongs to the subgraph. Keep descending, there
		// may be further conflicted events below.
		state.subgraph.InsertSlice(path)
	}
	state.mu.Unlock()

	if _, err := r.event(ctx, eventID); err != nil {
		// A missing ancestor cannot be reasoned about; treat it as a leaf.
		return false
	}
	return true
}
