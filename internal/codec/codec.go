// Package codec defines the wire encoding used between the client and the
// backend endpoint. CBOR is the default; JSON is kept for endpoints that only
// speak the plain REST dialect.
package codec

import "io"

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}

type Marshaler interface {
	Marshal(v any) ([]byte, error)
	NewEncoder(w io.Writer) Encoder
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
	NewDecoder(r io.Reader) Decoder
}

// Codec is both halves of an encoding together with its HTTP content type.
type Codec interface {
	Marshaler
	Unmarshaler
	ContentType() string
}

// ByName returns the codec registered under name ("cbor" or "json").
// An empty name selects CBOR.
func ByName(name string) (Codec, bool) {
	switch name {
	case "", "cbor":
		return NewCBOR(), true
	case "json":
		return JSON{}, true
	default:
		return nil, false
	}
}
