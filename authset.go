package stateres

import (
	"context"
)

// AuthSetFor computes the full recursive auth set of a state map, which is
// the form Resolve expects its auth chain inputs in.
//
// The walk is depth first over auth_events, which keeps the number of
// duplicate lookups down when state events share most of their history. An
// ancestor the provider cannot produce is still part of the set, because it
// is cited, but the walk cannot continue through it.
func AuthSetFor(ctx context.Context, provider EventProvider, stateMap StateMap) AuthSet {
	authSet := NewAuthSet()

	pending := make([]string, 0, len(stateMap))
	for _, eventID := range stateMap {
		pending = append(pending, eventID)
	}
	for len(pending) > 0 {
		eventID := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		event, err := provider.Event(ctx, eventID)
		if err != nil {
			continue
		}
		for _, authEventID := range event.AuthEventIDs() {
			if authSet.Insert(authEventID) {
				pending = append(pending, authEventID)
			}
		}
	}
	return authSet
}
