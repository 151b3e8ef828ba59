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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrix-org/stateres/spec"
)

// mainlineFixture builds a room with a two-entry mainline. PA updates the
// power levels on top of IPOWER; E1 is anchored on the older mainline entry
// and E2 on the newer one.
func mainlineFixture() (provider *testEventProvider, pa, e1, e2 *Event) {
	base := testRoomEvents()
	pa = mustCreateEvent(testEventFields{
		EventID:        "$PA:example.com",
		Type:           spec.MRoomPowerLevels,
		OriginServerTS: 7,
		Sender:         ALICE,
		StateKey:       &emptyStateKey,
		Content:        json.RawMessage(`{"users": {"` + ALICE + `": 100}}`),
		AuthEvents:     []string{"$CREATE:example.com", "$IMA:example.com", "$IPOWER:example.com"},
	})
	e1 = mustCreateEvent(testEventFields{
		EventID:        "$E1:example.com",
		Type:           spec.MRoomName,
		OriginServerTS: 20,
		Sender:         ALICE,
		StateKey:       &emptyStateKey,
		Content:        json.RawMessage(`{"name": "old anchor"}`),
		AuthEvents:     []string{"$CREATE:example.com", "$IMA:example.com", "$IPOWER:example.com"},
	})
	e2 = mustCreateEvent(testEventFields{
		EventID:        "$E2:example.com",
		Type:           spec.MRoomTopic,
		OriginServerTS: 10,
		Sender:         ALICE,
		StateKey:       &emptyStateKey,
		Content:        json.RawMessage(`{"topic": "new anchor"}`),
		AuthEvents:     []string{"$CREATE:example.com", "$IMA:example.com", "$PA:example.com"},
	})
	provider = newTestEventProvider(base...)
	provider.add(pa, e1, e2)
	return
}

func TestMainlinePositions(t *testing.T) {
	provider, pa, _, _ := mainlineFixture()
	r := newTestResolver(provider, StateResV2Rules{})

	positions, err := r.mainlinePositions(context.Background(), pa.EventID())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"$IPOWER:example.com": 0,
		pa.EventID():          1,
	}, positions)

	positions, err = r.mainlinePositions(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestMainlineSort(t *testing.T) {
	provider, pa, e1, e2 := mainlineFixture()
	r := newTestResolver(provider, StateResV2Rules{})

	// E1 hangs off the older mainline entry, so it sorts first even though
	// its claimed timestamp is later than E2's.
	order, err := r.mainlineSort(context.Background(), pa.EventID(), []string{
		e2.EventID(), e1.EventID(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{e1.EventID(), e2.EventID()}, order)
}

func TestMainlineSortTieBreaks(t *testing.T) {
	provider, pa, e1, _ := mainlineFixture()
	sameTS := mustCreateEvent(testEventFields{
		EventID:        "$E0:example.com",
		Type:           spec.MRoomTopic,
		OriginServerTS: 20,
		Sender:         ALICE,
		StateKey:       &emptyStateKey,
		Content:        json.RawMessage(`{"topic": "tie"}`),
		AuthEvents:     []string{"$CREATE:example.com", "$IMA:example.com", "$IPOWER:example.com"},
	})
	earlier := mustCreateEvent(testEventFields{
		EventID:        "$E9:example.com",
		Type:           spec.MRoomTopic,
		OriginServerTS: 15,
		Sender:         ALICE,
		StateKey:       &emptyStateKey,
		Content:        json.RawMessage(`{"topic": "earlier"}`),
		AuthEvents:     []string{"$CREATE:example.com", "$IMA:example.com", "$IPOWER:example.com"},
	})
	provider.add(sameTS, earlier)
	r := newTestResolver(provider, StateResV2Rules{})

	// All three share mainline position 0: the earlier timestamp comes
	// first, and the remaining tie falls back to the event ID.
	order, err := r.mainlineSort(context.Background(), pa.EventID(), []string{
		e1.EventID(), sameTS.EventID(), earlier.EventID(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		earlier.EventID(), sameTS.EventID(), e1.EventID(),
	}, order)
}

func TestMainlineSortDropsUnfetchable(t *testing.T) {
	provider, pa, e1, _ := mainlineFixture()
	r := newTestResolver(provider, StateResV2Rules{})

	order, err := r.mainlineSort(context.Background(), pa.EventID(), []string{
		e1.EventID(), "$UNKNOWN:example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{e1.EventID()}, order)
}

func TestMainlineSortBrokenMainlineFails(t *testing.T) {
	base := testRoomEvents()
	// The anchor cites a power levels event the provider cannot produce,
	// so the mainline itself cannot be established.
	gone := mustCreateEvent(testEventFields{
		EventID:        "$PGONE:example.com",
		Type:           spec.MRoomPowerLevels,
		OriginServerTS: 7,
		Sender:         ALICE,
		StateKey:       &emptyStateKey,
		Content:        json.RawMessage(`{}`),
		AuthEvents:     []string{"$VANISHED:example.com"},
	})
	provider := newTestEventProvider(base...)
	provider.add(gone)
	r := newTestResolver(provider, StateResV2Rules{})

	_, err := r.mainlineSort(context.Background(), gone.EventID(), nil)
	var missing MissingEventError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "$VANISHED:example.com", missing.EventID)
}
