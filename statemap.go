package stateres

import (
	"github.com/hashicorp/go-set/v3"
)

// A StateKeyTuple is the combination of an event type and an event state
// key. It is often used as a key in maps.
type StateKeyTuple struct {
	// The "type" key of a matrix event.
	EventType string
	// The "state_key" of a matrix event.
	// The empty string is a legitimate value for the "state_key" in matrix
	// so take care to initialise this field lest you accidentally request a
	// "state_key" with the go default of the empty string.
	StateKey string
}

// A StateMap is a snapshot of room state, mapping each state key tuple to
// the ID of the event currently holding that slot. A state map contains at
// most one event ID per tuple.
type StateMap map[StateKeyTuple]string

// copyStateMap returns a shallow copy that can be mutated without affecting
// the original.
func copyStateMap(stateMap StateMap) StateMap {
	result := make(StateMap, len(stateMap))
	for tuple, eventID := range stateMap {
		result[tuple] = eventID
	}
	return result
}

// An AuthSet is the full recursive set of auth event IDs for every event in
// one input state map. One auth set accompanies each state map passed to
// Resolve.
type AuthSet = *set.Set[string]

// NewAuthSet builds an AuthSet from the given event IDs.
func NewAuthSet(eventIDs ...string) AuthSet {
	return set.From(eventIDs)
}

// A ConflictMap collects, for each state key tuple the input state maps
// disagree on, every distinct event ID seen for that tuple.
type ConflictMap map[StateKeyTuple][]string

// eventIDs flattens the conflict map values into a deduplicated set.
func (c ConflictMap) eventIDs() *set.Set[string] {
	ids := set.New[string](len(c) * 2)
	for _, candidates := range c {
		ids.InsertSlice(candidates)
	}
	return ids
}
