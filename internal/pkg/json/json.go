//go:build amd64 || arm64

package json // Package json provides a unified interface for JSON encoding and decoding operations

import (
	stdjson "encoding/json"
	"io"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/decoder"
)

const Library = "github.com/bytedance/sonic"

// RawMessage is a raw encoded JSON value.
// Both backends honor its Marshaler/Unmarshaler implementation.
type RawMessage = stdjson.RawMessage

// api is configured to match encoding/json behavior (sorted map keys, HTML escaping)
var api = sonic.ConfigStd

// Marshal returns the JSON encoding of v
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// Unmarshal parses the JSON-encoded data and stores the result in the value pointed to by v
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// Valid reports whether data is a valid JSON encoding
func Valid(data []byte) bool {
	return api.Valid(data)
}

// Decoder represents a JSON decoder that utilizes the high-performance Sonic decoder for AMD64 architecture
type Decoder struct {
	reader io.Reader
	dec    *decoder.StreamDecoder
}

// NewDecoder creates a new JSON decoder that wraps the provided io.Reader
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		reader: r,
		dec:    decoder.NewStreamDecoder(r),
	}
}

// Decode decodes JSON data into the provided interface
func (d *Decoder) Decode(v interface{}) error {
	return d.dec.Decode(v)
}

// Encoder represents a JSON encoder that utilizes the high-performance Sonic encoder for AMD64 architecture
type Encoder struct {
	writer io.Writer
}

// NewEncoder creates a new JSON encoder that wraps the provided io.Writer
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		writer: w,
	}
}

// Encode encodes the provided interface into JSON format
// It always writes exactly one line: the value followed by a newline,
// which is the framing expected by line-delimited JSON streams
func (e *Encoder) Encode(v interface{}) error {
	buf, err := api.Marshal(v)
	if err != nil {
		return err
	}

	buf = append(buf, '\n')
	_, err = e.writer.Write(buf)
	return err
}
