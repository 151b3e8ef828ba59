package stateres

import (
	"fmt"
)

// MissingEventError refers to a situation where an event needed by the
// resolver could not be retrieved from the event provider.
type MissingEventError struct {
	EventID string
}

func (e MissingEventError) Error() string {
	return fmt.Sprintf("stateres: missing event with ID %s", e.EventID)
}

// UnsupportedRoomVersionError occurs when a call has been made with a room
// version that is not known to the resolver.
type UnsupportedRoomVersionError struct {
	Version RoomVersion
}

func (e UnsupportedRoomVersionError) Error() string {
	return fmt.Sprintf("stateres: unsupported room version %q", e.Version)
}

// AuthChainCycleError refers to an event whose auth events refer, directly
// or transitively, back to the event itself. Such an event can never be
// authorized and is excluded from the orderings that discover it.
type AuthChainCycleError struct {
	EventID string
}

func (e AuthChainCycleError) Error() string {
	return fmt.Sprintf("stateres: auth chain cycle through event %s", e.EventID)
}
