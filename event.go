/* Copyright 2016-2017 Vector Creations Ltd
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package stateres

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/matrix-org/stateres/spec"
)

// An Event is a matrix room event as stored by the server. The resolver only
// ever reads events, so an Event is parsed once on load and immutable after
// that. Signature and content hash checks belong to the ingestion pipeline
// and are assumed to have happened before an event reaches this package.
type Event struct {
	eventJSON []byte
	fields    eventFields
}

type eventFields struct {
	EventID        string         `json:"event_id"`
	RoomID         string         `json:"room_id"`
	Sender         string         `json:"sender"`
	Type           string         `json:"type"`
	StateKey       *string        `json:"state_key"`
	Content        spec.RawJSON   `json:"content"`
	AuthEvents     []string       `json:"auth_events"`
	PrevEvents     []string       `json:"prev_events"`
	OriginServerTS spec.Timestamp `json:"origin_server_ts"`
}

// NewEventFromTrustedJSON loads a new event from some JSON that must be valid,
// e.g. because it was stored in a local database after full validation.
// Synapse-style internal bookkeeping keys are stripped in case a server
// accidentally persisted them.
func NewEventFromTrustedJSON(eventJSON []byte) (*Event, error) {
	var err error
	for _, key := range []string{"outlier", "destinations", "age_ts"} {
		if eventJSON, err = sjson.DeleteBytes(eventJSON, key); err != nil {
			return nil, err
		}
	}

	result := &Event{eventJSON: eventJSON}
	if err = json.Unmarshal(eventJSON, &result.fields); err != nil {
		return nil, err
	}
	if result.fields.EventID == "" {
		return nil, fmt.Errorf("stateres: event has no event_id")
	}
	if result.fields.Type == "" {
		return nil, fmt.Errorf("stateres: event %q has no type", result.fields.EventID)
	}
	return result, nil
}

// EventID returns the event ID of the event.
func (e *Event) EventID() string {
	return e.fields.EventID
}

// StateKey returns the "state_key" of the event, or the nil if the event is
// not a state event.
func (e *Event) StateKey() *string {
	return e.fields.StateKey
}

// StateKeyEquals returns true if the event is a state event and the
// "state_key" matches.
func (e *Event) StateKeyEquals(stateKey string) bool {
	if e.fields.StateKey == nil {
		return false
	}
	return *e.fields.StateKey == stateKey
}

// Type returns the type of the event.
func (e *Event) Type() string {
	return e.fields.Type
}

// Content returns the content JSON of the event.
func (e *Event) Content() []byte {
	return []byte(e.fields.Content)
}

// Membership returns the value of the content.membership field if this event
// is an "m.room.member" event.
// Returns an error if the event is not a m.room.member event or if the
// content is missing the membership key.
func (e *Event) Membership() (string, error) {
	if e.fields.Type != spec.MRoomMember {
		return "", fmt.Errorf("stateres: not an m.room.member event")
	}
	membership := gjson.GetBytes(e.Content(), "membership")
	if !membership.Exists() {
		return "", fmt.Errorf("stateres: m.room.member event %q has no membership", e.fields.EventID)
	}
	return membership.Str, nil
}

// RoomID returns the room ID of the room the event is in.
func (e *Event) RoomID() string {
	return e.fields.RoomID
}

// AuthEventIDs returns the event IDs of the events needed to auth the event.
func (e *Event) AuthEventIDs() []string {
	return e.fields.AuthEvents
}

// PrevEventIDs returns the event IDs of the direct ancestors of the event.
func (e *Event) PrevEventIDs() []string {
	return e.fields.PrevEvents
}

// OriginServerTS returns the unix timestamp when this event was created on
// the origin server, with millisecond resolution.
func (e *Event) OriginServerTS() spec.Timestamp {
	return e.fields.OriginServerTS
}

// Sender returns the user ID of the sender of the event.
func (e *Event) Sender() string {
	return e.fields.Sender
}

// JSON returns the JSON bytes for the event.
func (e *Event) JSON() []byte {
	return e.eventJSON
}
