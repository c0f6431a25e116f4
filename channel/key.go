// Package channel provides channel identity and per-channel runtime state.
package channel

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Key is a 128-bit channel identity derived from canonical JSON of the
// channel's domain name and filter parameters. Two consumers requesting the
// same logical data (same domain, same filters) produce the same Key, which
// is what makes transport-level deduplication possible.
type Key [16]byte

// Zero is the zero-value Key.
var Zero Key

// KeyFor computes a channel Key from a domain name and filter parameters.
// The filter value is marshaled to JSON, decoded into a generic map, and
// re-marshaled so that map-key ordering cannot influence the result. Go's
// encoding/json sorts map keys at all nesting levels, so the canonical form
// is deterministic without manual sorting.
//
// A nil filter is treated as an empty object. An unmarshalable filter is a
// caller bug and returns an error.
func KeyFor(domain string, filter any) (Key, error) {
	if domain == "" {
		return Zero, fmt.Errorf("channel: empty domain")
	}
	canonical, err := CanonicalFilter(filter)
	if err != nil {
		return Zero, err
	}

	payload := make([]byte, 0, len(domain)+1+len(canonical))
	payload = append(payload, domain...)
	payload = append(payload, 0)
	payload = append(payload, canonical...)
	return hashBytes(payload), nil
}

// CanonicalFilter returns the canonical JSON encoding of a filter value.
// The same canonical bytes are handed to the transport so that the wire
// request and the dedup key can never disagree about the filter.
func CanonicalFilter(filter any) ([]byte, error) {
	if filter == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("channel: marshal filter: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("channel: filter must encode to a JSON object: %w", err)
	}
	canonical, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("channel: canonicalize filter: %w", err)
	}
	return canonical, nil
}

// Hex returns the lowercase hex encoding of the key.
func (k Key) Hex() string {
	return hex.EncodeToString(k[:])
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return k.Hex()
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool {
	return k == Zero
}

// ParseHex decodes a 32-character hex string into a Key.
func ParseHex(s string) (Key, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Zero, fmt.Errorf("channel.ParseHex: %w", err)
	}
	if len(b) != 16 {
		return Zero, fmt.Errorf("channel.ParseHex: expected 16 bytes, got %d", len(b))
	}
	var k Key
	copy(k[:], b)
	return k, nil
}

func hashBytes(b []byte) Key {
	sum := xxh3.Hash128(b)
	var k Key
	binary.BigEndian.PutUint64(k[:8], sum.Hi)
	binary.BigEndian.PutUint64(k[8:], sum.Lo)
	return k
}
