package spec

// RawJSON is a variant of json.RawMessage that can be used as a value type.
// Marshalling a RawJSON emits the bytes verbatim rather than base64-encoding
// them, so embedded raw content survives a round trip through json.Marshal.
type RawJSON []byte

// MarshalJSON implements the json.Marshaller interface using a value receiver.
// This means that RawJSON used as an embedded value will still encode correctly.
func (r RawJSON) MarshalJSON() ([]byte, error) {
	return []byte(r), nil
}

// UnmarshalJSON implements the json.Unmarshaller interface using a pointer receiver.
func (r *RawJSON) UnmarshalJSON(data []byte) error {
	*r = RawJSON(data)
	return nil
}
