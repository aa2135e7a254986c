package canvas

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/canvas-studio/engine/pkg/utils"
)

// Snapshot is the unit of persistence: the full graph plus viewport at one instant.
type Snapshot struct {
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges"`
	Viewport Viewport `json:"viewport"`
	// NextNodeID is the node-id counter, persisted so ids never repeat.
	NextNodeID int64 `json:"nextNodeId,omitempty"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Viewport: s.Viewport, NextNodeID: s.NextNodeID}
	if s.Nodes != nil {
		out.Nodes = make([]Node, len(s.Nodes))
		for i, n := range s.Nodes {
			out.Nodes[i] = n.Clone()
		}
	}
	if s.Edges != nil {
		out.Edges = append([]Edge(nil), s.Edges...)
	}
	return out
}

// Consistent reports whether every edge references nodes present in s.
func (s Snapshot) Consistent() bool {
	ids := s.nodeIDs()
	for _, e := range s.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			return false
		}
	}
	return true
}

// Sanitize returns a copy of s without dangling edges, duplicate node ids or
// a zero zoom. Stored records are loosely typed, so loads go through here.
func (s Snapshot) Sanitize() Snapshot {
	out := Snapshot{Viewport: s.Viewport, NextNodeID: s.NextNodeID}
	if out.Viewport.Zoom <= 0 {
		out.Viewport.Zoom = 1
	}
	seen := make(map[string]bool, len(s.Nodes))
	out.Nodes = make([]Node, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.ID == "" || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out.Nodes = append(out.Nodes, n.Clone())
	}
	edgeSeen := make(map[string]bool, len(s.Edges))
	out.Edges = make([]Edge, 0, len(s.Edges))
	for _, e := range s.Edges {
		if !seen[e.Source] || !seen[e.Target] || edgeSeen[e.ID] {
			continue
		}
		edgeSeen[e.ID] = true
		out.Edges = append(out.Edges, e)
	}
	return out
}

func (s Snapshot) nodeIDs() map[string]bool {
	ids := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		ids[n.ID] = true
	}
	return ids
}

// Fingerprint returns a stable hash of the snapshot's serialized form.
// Equal snapshots always produce equal fingerprints.
func Fingerprint(s Snapshot) (string, error) {
	b, err := json.Marshal(normalize(s))
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return utils.HexSHA256(b), nil
}

// normalize makes nil and empty collections serialize identically and
// canonicalises node data so whitespace differences in stored JSON do not
// register as edits.
func normalize(s Snapshot) Snapshot {
	out := s
	out.Nodes = make([]Node, len(s.Nodes))
	for i, n := range s.Nodes {
		if len(n.Data) > 0 {
			n.Data = canonical(n.Data)
		}
		out.Nodes[i] = n
	}
	if out.Edges == nil {
		out.Edges = []Edge{}
	}
	return out
}

// canonical re-encodes raw with sorted keys and no insignificant whitespace.
// Numbers keep their literal text so values beyond float64 precision stay
// distinct. Invalid JSON is returned unchanged.
func canonical(raw json.RawMessage) json.RawMessage {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return b
}

// Encode serializes a snapshot for storage.
func Encode(s Snapshot) ([]byte, error) {
	return json.Marshal(normalize(s))
}

// Decode parses a stored snapshot and sanitizes it.
func Decode(b []byte) (Snapshot, error) {
	var s Snapshot
	if len(b) == 0 {
		return Snapshot{Viewport: DefaultViewport}, nil
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s.Sanitize(), nil
}
