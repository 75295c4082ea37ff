// Package jsoncodec is the JSON encoder shared by notification payloads and the
// introspection API. It uses sonic configured to behave like encoding/json.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }

// Encode writes v to w followed by a newline.
func Encode(w io.Writer, v any) error { return api.NewEncoder(w).Encode(v) }

// Decode decodes a single JSON value from r into v. The decoder may buffer
// past the value, so read a stream of values through one NewDecoder.
func Decode(r io.Reader, v any) error { return api.NewDecoder(r).Decode(v) }

// NewDecoder returns a decoder that reads successive JSON values from r.
func NewDecoder(r io.Reader) sonic.Decoder { return api.NewDecoder(r) }
