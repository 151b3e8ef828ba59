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
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matrix-org/stateres/spec"
)

func TestSplitConflictedState(t *testing.T) {
	name := StateKeyTuple{spec.MRoomName, ""}
	topic := StateKeyTuple{spec.MRoomTopic, ""}
	memberA := StateKeyTuple{spec.MRoomMember, ALICE}

	tests := []struct {
		desc             string
		input            []StateMap
		wantUnconflicted StateMap
		wantConflicted   ConflictMap
	}{
		{
			desc:             "no input maps",
			input:            nil,
			wantUnconflicted: StateMap{},
			wantConflicted:   ConflictMap{},
		},
		{
			desc: "identical maps agree on everything",
			input: []StateMap{
				{name: "$N1", memberA: "$M1"},
				{name: "$N1", memberA: "$M1"},
			},
			wantUnconflicted: StateMap{name: "$N1", memberA: "$M1"},
			wantConflicted:   ConflictMap{},
		},
		{
			desc: "one disagreeing tuple",
			input: []StateMap{
				{name: "$N1", memberA: "$M1"},
				{name: "$N2", memberA: "$M1"},
			},
			wantUnconflicted: StateMap{memberA: "$M1"},
			wantConflicted:   ConflictMap{name: {"$N1", "$N2"}},
		},
		{
			desc: "absence is not a conflict",
			input: []StateMap{
				{name: "$N1", topic: "$T1"},
				{name: "$N1"},
			},
			wantUnconflicted: StateMap{name: "$N1", topic: "$T1"},
			wantConflicted:   ConflictMap{},
		},
		{
			desc: "three forks with repeated candidates",
			input: []StateMap{
				{name: "$N1"},
				{name: "$N2"},
				{name: "$N1"},
			},
			wantUnconflicted: StateMap{},
			wantConflicted:   ConflictMap{name: {"$N1", "$N2"}},
		},
		{
			desc: "conflict and absence together",
			input: []StateMap{
				{name: "$N1", topic: "$T1"},
				{name: "$N2"},
				{topic: "$T1"},
			},
			wantUnconflicted: StateMap{topic: "$T1"},
			wantConflicted:   ConflictMap{name: {"$N1", "$N2"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			unconflicted, conflicted := splitConflictedState(tc.input)
			if diff := cmp.Diff(tc.wantUnconflicted, unconflicted); diff != "" {
				t.Errorf("unconflicted mismatch (-want +got):\n%s", diff)
			}
			for tuple := range conflicted {
				sort.Strings(conflicted[tuple])
			}
			if diff := cmp.Diff(tc.wantConflicted, conflicted); diff != "" {
				t.Errorf("conflicted mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
