package spec

import "time"

// A Timestamp is the number of milliseconds since the unix epoch, the form
// origin_server_ts takes on the wire. The value is claimed by the sending
// server, so resolution only ever uses it to break ties, never to establish
// ordering it has to trust.
type Timestamp uint64

// AsTimestamp converts a time.Time into a wire timestamp, discarding any
// sub-millisecond precision.
func AsTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time converts the wire timestamp back into a UTC time.Time.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}
