package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBOR encodes timestamps as tagged RFC3339 strings so that time values
// survive a round trip through untyped containers such as filter values.
type CBOR struct {
	em cbor.EncMode
	dm cbor.DecMode
}

func NewCBOR() *CBOR {
	em, err := cbor.EncOptions{
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		panic(err)
	}

	dm, err := cbor.DecOptions{
		TimeTagToAny:   cbor.TimeTagToTime,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(err)
	}

	return &CBOR{em: em, dm: dm}
}

func (c *CBOR) Marshal(v any) ([]byte, error) {
	return c.em.Marshal(v)
}

func (c *CBOR) NewEncoder(w io.Writer) Encoder {
	return c.em.NewEncoder(w)
}

func (c *CBOR) Unmarshal(data []byte, dst any) error {
	return c.dm.Unmarshal(data, dst)
}

func (c *CBOR) NewDecoder(r io.Reader) Decoder {
	return c.dm.NewDecoder(r)
}

func (c *CBOR) ContentType() string {
	return "application/cbor"
}
