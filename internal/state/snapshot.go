// Package state holds the persisted shape of a user's stars and the
// in-memory registry the engine mutates. The registry is pure data:
// no storage, no logging, no goroutines.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SchemaVersion is the persisted snapshot schema this build reads and
// writes. Snapshots carrying any other version are treated as absent,
// there is no migration path for star lists.
const SchemaVersion = 1

// ErrVersionMismatch marks a snapshot written by a different schema.
var ErrVersionMismatch = errors.New("snapshot schema version mismatch")

// Snapshot is one user's persisted star state: per-segment card ID
// lists in star insertion order, oldest first.
type Snapshot struct {
	Version  int                 `json:"version"`
	Segments map[string][]string `json:"segments"`
}

// EmptySnapshot returns a current-version snapshot with no stars.
func EmptySnapshot() Snapshot {
	return Snapshot{Version: SchemaVersion, Segments: map[string][]string{}}
}

// Clone returns a deep copy, safe to hand across goroutines.
func (s Snapshot) Clone() Snapshot {
	c := Snapshot{Version: s.Version, Segments: make(map[string][]string, len(s.Segments))}
	for seg, cards := range s.Segments {
		c.Segments[seg] = append([]string(nil), cards...)
	}
	return c
}

// Total returns the number of starred cards across all segments.
func (s Snapshot) Total() int {
	n := 0
	for _, cards := range s.Segments {
		n += len(cards)
	}
	return n
}

// Encode serializes the snapshot for a storage slot. Compact JSON with
// object keys in byte order, so equal snapshots encode identically.
func (s Snapshot) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	return string(data), nil
}

// Decode parses a storage slot value. Any malformed payload or foreign
// schema version is an error; callers fall back to an empty snapshot.
func Decode(raw string) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	if s.Version != SchemaVersion {
		return Snapshot{}, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, s.Version, SchemaVersion)
	}
	if s.Segments == nil {
		s.Segments = map[string][]string{}
	}
	return s, nil
}
