package codec

import (
	"io"

	"github.com/goccy/go-json"
)

// JSON decodes numbers as float64 and timestamps as strings; callers that
// need typed values back must normalize them.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) NewEncoder(w io.Writer) Encoder {
	return json.NewEncoder(w)
}

func (JSON) Unmarshal(data []byte, dst any) error {
	return json.Unmarshal(data, dst)
}

func (JSON) NewDecoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}

func (JSON) ContentType() string {
	return "application/json"
}
