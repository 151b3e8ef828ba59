// Copyright 2017 Vector Creations Ltd
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
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/matrix-org/stateres/spec"
)

// MemberContent is the JSON content of a m.room.member event.
// https://spec.matrix.org/v1.7/client-server-api/#mroommember
type MemberContent struct {
	// We use the membership key in order checks.
	Membership string `json:"membership"`
	// The authorising user ID, if the join used a restricted join rule.
	AuthorisedVia string `json:"join_authorised_via_users_server,omitempty"`
	// The token citing a third party invite, if there is one.
	ThirdPartyInvite *MemberThirdPartyInvite `json:"third_party_invite,omitempty"`
}

// MemberThirdPartyInvite is the "Invite" structure defined at
// https://spec.matrix.org/v1.7/client-server-api/#mroommember
type MemberThirdPartyInvite struct {
	Signed MemberThirdPartyInviteSigned `json:"signed"`
}

// MemberThirdPartyInviteSigned carries the token that ties a membership
// event back to the m.room.third_party_invite event it claims.
type MemberThirdPartyInviteSigned struct {
	MXID  string `json:"mxid"`
	Token string `json:"token"`
}

// NewMemberContentFromAuthEvents loads the member content from the member
// event for the user ID in the auth state. Returns an empty MemberContent
// if there isn't a member event in the auth state.
func NewMemberContentFromAuthEvents(authState map[StateKeyTuple]PDU, userID string) (c MemberContent, err error) {
	memberEvent, ok := authState[StateKeyTuple{spec.MRoomMember, userID}]
	if !ok {
		// If there isn't a member event then the membership for the user
		// defaults to leave.
		c.Membership = spec.Leave
		return
	}
	return NewMemberContentFromEvent(memberEvent)
}

// NewMemberContentFromEvent parses the member content from an event.
func NewMemberContentFromEvent(event PDU) (c MemberContent, err error) {
	if err = json.Unmarshal(event.Content(), &c); err != nil {
		err = fmt.Errorf("stateres: invalid member content in %q: %w", event.EventID(), err)
	}
	return
}

// PowerLevelContent is the JSON content of a m.room.power_levels event.
// https://spec.matrix.org/v1.7/client-server-api/#mroompower_levels
type PowerLevelContent struct {
	Ban           int64            `json:"ban"`
	Invite        int64            `json:"invite"`
	Kick          int64            `json:"kick"`
	Redact        int64            `json:"redact"`
	Users         map[string]int64 `json:"users"`
	UsersDefault  int64            `json:"users_default"`
	Events        map[string]int64 `json:"events"`
	EventsDefault int64            `json:"events_default"`
	StateDefault  int64            `json:"state_default"`
}

// UserLevel returns the power level a user has in the room.
func (c *PowerLevelContent) UserLevel(userID string) int64 {
	level, ok := c.Users[userID]
	if ok {
		return level
	}
	return c.UsersDefault
}

// EventLevel returns the power level needed to send an event in the room.
func (c *PowerLevelContent) EventLevel(eventType string, isState bool) int64 {
	if eventType == spec.MRoomThirdPartyInvite {
		// Special case third_party_invite events to have the same level as
		// invites, breaking ties with the m.room.third_party_invite entry
		// in the events map.
		// https://github.com/matrix-org/synapse/blob/v0.18.5/synapse/api/auth.py#L182
		level, ok := c.Events[eventType]
		if ok {
			return level
		}
		return c.Invite
	}
	level, ok := c.Events[eventType]
	if ok {
		return level
	}
	if isState {
		return c.StateDefault
	}
	return c.EventsDefault
}

// NewPowerLevelContentFromAuthEvents loads the power level content from the
// power level event in the auth state or returns the default values if there
// is no power level event.
func NewPowerLevelContentFromAuthEvents(authState map[StateKeyTuple]PDU, creatorUserID string) (c PowerLevelContent, err error) {
	powerLevelsEvent, ok := authState[StateKeyTuple{spec.MRoomPowerLevels, ""}]
	if ok {
		return NewPowerLevelContentFromEvent(powerLevelsEvent)
	}

	// If there are no power levels then fall back to defaults.
	c.Defaults()
	// If there is no power level event then the creator gets level 100.
	// https://spec.matrix.org/v1.7/rooms/v10/#authorization-rules
	c.Users = map[string]int64{creatorUserID: 100}
	return
}

// Defaults sets the power levels to their default values.
// See https://spec.matrix.org/v1.7/client-server-api/#mroompower_levels
func (c *PowerLevelContent) Defaults() {
	*c = PowerLevelContent{
		Ban:          50,
		Invite:       0,
		Kick:         50,
		Redact:       50,
		StateDefault: 50,
	}
}

// NewPowerLevelContentFromEvent loads the power level content from an event.
func NewPowerLevelContentFromEvent(event PDU) (c PowerLevelContent, err error) {
	// Set the levels to their default values.
	c.Defaults()

	// We can't extract the JSON directly to the powerLevelContent because we
	// need to convert string values to int values. gjson's Int coercion
	// accepts both, which keeps us tolerant of events sent by servers that
	// serialised levels as strings.
	content := gjson.ParseBytes(event.Content())
	for key, target := range map[string]*int64{
		"ban":            &c.Ban,
		"invite":         &c.Invite,
		"kick":           &c.Kick,
		"redact":         &c.Redact,
		"users_default":  &c.UsersDefault,
		"events_default": &c.EventsDefault,
		"state_default":  &c.StateDefault,
	} {
		if value := content.Get(key); value.Exists() {
			*target = value.Int()
		}
	}

	if users := content.Get("users"); users.IsObject() {
		c.Users = make(map[string]int64)
		users.ForEach(func(key, value gjson.Result) bool {
			c.Users[key.String()] = value.Int()
			return true
		})
	}
	if events := content.Get("events"); events.IsObject() {
		c.Events = make(map[string]int64)
		events.ForEach(func(key, value gjson.Result) bool {
			c.Events[key.String()] = value.Int()
			return true
		})
	}
	return
}
