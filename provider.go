package stateres

import (
	"context"
	"runtime"
)

// An EventProvider supplies persisted room events to the resolver. The
// resolver never writes events, so implementations can be backed by a
// database, a federation cache or a plain in-memory map.
//
// Both methods may be called concurrently from multiple goroutines, up to
// the fan-out ceiling returned by automaticWidth.
type EventProvider interface {
	// Event retrieves a single event by its event ID. If the event is not
	// known a MissingEventError must be returned.
	Event(ctx context.Context, eventID string) (PDU, error)
	// EventExists reports whether the event is known. The check may be
	// approximate but must never report true for an event that Event would
	// fail to return.
	EventExists(ctx context.Context, eventID string) bool
}

// EventProviderFuncs adapts plain functions to the EventProvider interface.
// If ExistsFunc is nil, existence is probed by calling EventFunc and
// discarding the result.
type EventProviderFuncs struct {
	EventFunc  func(ctx context.Context, eventID string) (PDU, error)
	ExistsFunc func(ctx context.Context, eventID string) bool
}

// Event implements EventProvider.
func (p EventProviderFuncs) Event(ctx context.Context, eventID string) (PDU, error) {
	return p.EventFunc(ctx, eventID)
}

// EventExists implements EventProvider.
func (p EventProviderFuncs) EventExists(ctx context.Context, eventID string) bool {
	if p.ExistsFunc != nil {
		return p.ExistsFunc(ctx, eventID)
	}
	_, err := p.EventFunc(ctx, eventID)
	return err == nil
}

// An Authorizer is the room-version-specific authorization predicate. It is
// called with an event and the auth state relevant to that event: the
// event's own auth events overlaid with the resolver's accumulated state for
// the state key tuples the event's type requires. A nil error means the
// event is allowed.
type Authorizer func(event PDU, authState map[StateKeyTuple]PDU) error

// automaticWidth is the ceiling on concurrent event provider lookups. Event
// providers are usually disk or network bound, so the resolver overlaps
// lookups rather than issuing them one at a time, but without a bound a
// large room could flood the storage layer.
func automaticWidth() int {
	width := runtime.GOMAXPROCS(0) * 2
	if width < 4 {
		width = 4
	}
	return width
}
