package stateres

import (
	"strings"

	"github.com/matrix-org/stateres/spec"
)

// A conflictedPowerLevelEvent carries the information needed to order one
// power event deterministically. Working out the effective power level
// ahead of time is a bit of an optimisation - it saves recomputing it on
// every comparison during the sort.
type conflictedPowerLevelEvent struct {
	powerLevel     int64
	originServerTS spec.Timestamp
	eventID        string
	event          PDU
}

// A conflictedPowerLevelHeap is the ready queue of Kahn's algorithm: among
// the events whose dependencies have all been emitted, the event sent with
// the greatest power level comes out first, ties broken by ascending
// origin_server_ts and then ascending event ID so that every server pops
// the queue in the same order.
type conflictedPowerLevelHeap []*conflictedPowerLevelEvent

func (s conflictedPowerLevelHeap) Len() int {
	return len(s)
}

func (s conflictedPowerLevelHeap) Less(i, j int) bool {
	if s[i].powerLevel != s[j].powerLevel {
		return s[i].powerLevel > s[j].powerLevel
	}
	if s[i].originServerTS != s[j].originServerTS {
		return s[i].originServerTS < s[j].originServerTS
	}
	return strings.Compare(s[i].eventID, s[j].eventID) < 0
}

func (s conflictedPowerLevelHeap) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s *conflictedPowerLevelHeap) Push(x any) {
	*s = append(*s, x.(*conflictedPowerLevelEvent))
}

func (s *conflictedPowerLevelHeap) Pop() any {
	old := *s
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*s = old[:n-1]
	return x
}

// A conflictedOtherEvent carries the information needed to order one
// non-power event by the mainline ordering.
type conflictedOtherEvent struct {
	mainlinePosition int
	originServerTS   spec.Timestamp
	eventID          string
	event            PDU
}

// A conflictedOtherList sorts non-power events into the mainline ordering:
// ascending mainline position (events based on an earlier mainline entry
// first), ties broken by ascending origin_server_ts and then ascending
// event ID.
type conflictedOtherList []*conflictedOtherEvent

func (s conflictedOtherList) Len() int {
	return len(s)
}

func (s conflictedOtherList) Less(i, j int) bool {
	if s[i].mainlinePosition != s[j].mainlinePosition {
		return s[i].mainlinePosition < s[j].mainlinePosition
	}
	if s[i].originServerTS != s[j].originServerTS {
		return s[i].originServerTS < s[j].originServerTS
	}
	return strings.Compare(s[i].eventID, s[j].eventID) < 0
}

func (s conflictedOtherList) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}
