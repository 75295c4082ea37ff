// Package metadata holds the string maps used for message headers and
// notification attributes.
package metadata

import "maps"

// Metadata is a set of string key/value pairs.
type Metadata map[string]string

// New builds Metadata from alternating keys and values. A trailing key
// without a value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 1; i < len(pairs); i += 2 {
		md[pairs[i-1]] = pairs[i]
	}
	return md
}

// Clone returns a copy of m. The copy is never nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	return maps.Clone(m)
}

// With returns a copy of m with key set to value.
func (m Metadata) With(key, value string) Metadata {
	out := m.Clone()
	out[key] = value
	return out
}
