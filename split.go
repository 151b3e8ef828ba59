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

// splitConflictedState partitions the input state maps into the unconflicted
// state map, containing every state key tuple that all input state maps
// holding the tuple agree on, and the conflict map, collecting the distinct
// candidate event IDs for every tuple they disagree on.
//
// A tuple that is simply absent from some of the inputs is not conflicted by
// that absence alone; conflict requires two differing event IDs.
func splitConflictedState(stateMaps []StateMap) (StateMap, ConflictMap) {
	unconflicted := make(StateMap)
	conflicted := make(ConflictMap)
	for _, stateMap := range stateMaps {
		for tuple, eventID := range stateMap {
			if candidates, ok := conflicted[tuple]; ok {
				// The tuple is already known to be conflicted, so all that is
				// left to do is to collect any new candidate value.
				conflicted[tuple] = appendCandidate(candidates, eventID)
				continue
			}
			existing, ok := unconflicted[tuple]
			switch {
			case !ok:
				unconflicted[tuple] = eventID
			case existing != eventID:
				// A second distinct value moves the tuple from the
				// unconflicted map into the conflict map.
				delete(unconflicted, tuple)
				conflicted[tuple] = []string{existing, eventID}
			}
		}
	}
	return unconflicted, conflicted
}

// appendCandidate adds the event ID to the candidate list unless it is
// already present. Candidate lists are tiny, one entry per disagreeing fork,
// so a linear scan beats a map here.
func appendCandidate(candidates []string, eventID string) []string {
	for _, candidate := range candidates {
		if candidate == eventID {
			return candidates
		}
	}
	return append(candidates, eventID)
}
