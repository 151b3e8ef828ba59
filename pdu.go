package stateres

import (
	"github.com/matrix-org/stateres/spec"
)

// PDU is the interface the resolver uses to read a single immutable room
// event. Implementations are expected to be cheap to call repeatedly; the
// resolver caches fetched events but not accessor results.
type PDU interface {
	EventID() string
	StateKey() *string
	StateKeyEquals(s string) bool
	Type() string
	Content() []byte
	Membership() (string, error)
	RoomID() string
	AuthEventIDs() []string
	PrevEventIDs() []string
	OriginServerTS() spec.Timestamp
	Sender() string
	JSON() []byte
}

// ToPDUs converts a slice of concrete PDU implementations to a slice of PDUs.
// This is useful when interfacing with functions which require []PDU.
func ToPDUs[T PDU](events []T) []PDU {
	result := make([]PDU, len(events))
	for i := range events {
		result[i] = events[i]
	}
	return result
}
