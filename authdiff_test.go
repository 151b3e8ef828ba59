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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthDifference(t *testing.T) {
	tests := []struct {
		desc  string
		input []AuthSet
		want  []string
	}{
		{
			desc:  "no auth sets",
			input: nil,
			want:  []string{},
		},
		{
			desc:  "single auth set has no difference",
			input: []AuthSet{NewAuthSet("$A", "$B")},
			want:  []string{},
		},
		{
			desc: "identical auth sets have no difference",
			input: []AuthSet{
				NewAuthSet("$A", "$B"),
				NewAuthSet("$B", "$A"),
			},
			want: []string{},
		},
		{
			desc: "events missing from one fork",
			input: []AuthSet{
				NewAuthSet("$A", "$B", "$C"),
				NewAuthSet("$A", "$D"),
			},
			want: []string{"$B", "$C", "$D"},
		},
		{
			desc: "three forks sharing only one ancestor",
			input: []AuthSet{
				NewAuthSet("$A", "$B"),
				NewAuthSet("$A", "$C"),
				NewAuthSet("$A", "$B", "$C"),
			},
			want: []string{"$B", "$C"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			assert.ElementsMatch(t, tc.want, authDifference(tc.input).Slice())
		})
	}
}

func TestFilterExisting(t *testing.T) {
	base := testRoomEvents()
	provider := newTestEventProvider(base...)
	provider.lying["$LIAR:example.com"] = true

	existing := filterExisting(context.Background(), provider, []string{
		"$CREATE:example.com",
		"$IMA:example.com",
		"$UNKNOWN:example.com",
		"$LIAR:example.com",
	})

	// The existence probe is about whether the provider vouches for the
	// event, not whether a fetch would succeed; a lying provider is caught
	// later, when the event is committed to a replay.
	assert.True(t, existing.Contains("$CREATE:example.com"))
	assert.True(t, existing.Contains("$IMA:example.com"))
	assert.True(t, existing.Contains("$LIAR:example.com"))
	assert.False(t, existing.Contains("$UNKNOWN:example.com"))
}
