package pickle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Protocol is the skeleton format version written by this package.
// Skeletons with a higher protocol are rejected.
const Protocol = 2

// Skeleton is the encoded structure of an object graph.
type Skeleton struct {
	Protocol  int               `json:"protocol"`
	SaveID    string            `json:"save_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Meta      map[string]string `json:"meta,omitempty"`
	Root      json.RawMessage   `json:"root"`
	Objects   []json.RawMessage `json:"objects"`
}

// Marshal returns the JSON form of the skeleton.
func (s *Skeleton) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal skeleton: %w", err)
	}
	return data, nil
}

// ParseSkeleton parses and checks a skeleton produced by Skeleton.Marshal.
func ParseSkeleton(data []byte) (*Skeleton, error) {
	var s Skeleton
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if s.Protocol < 1 || s.Protocol > Protocol {
		return nil, fmt.Errorf("%w: got %d, expected 1..%d", ErrUnsupportedProtocol, s.Protocol, Protocol)
	}
	if len(s.Root) == 0 {
		return nil, fmt.Errorf("%w: missing root", ErrMalformed)
	}
	return &s, nil
}

// PersistentIDs returns the payload of every persistent reference in the
// skeleton. A record appears once per occurrence and the order is
// unspecified. It needs no type information, so tools can list references
// without decoding the graph.
func (s *Skeleton) PersistentIDs() ([]json.RawMessage, error) {
	var out []json.RawMessage
	nodes := append([]json.RawMessage{s.Root}, s.Objects...)
	for _, node := range nodes {
		var err error
		out, err = collectPIDs(node, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func collectPIDs(node json.RawMessage, out []json.RawMessage) ([]json.RawMessage, error) {
	node = bytes.TrimSpace(node)
	if len(node) == 0 {
		return out, nil
	}
	switch node[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(node, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if pid, ok := obj[keyPID]; ok {
			return append(out, pid), nil
		}
		for _, child := range obj {
			var err error
			if out, err = collectPIDs(child, out); err != nil {
				return nil, err
			}
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(node, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		for _, child := range items {
			var err error
			if out, err = collectPIDs(child, out); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Marshal encodes v with no persistent references.
func Marshal(v any) ([]byte, error) {
	s, err := NewEncoder(EncoderOptions{}).Encode(v)
	if err != nil {
		return nil, err
	}
	return s.Marshal()
}

// Unmarshal decodes data produced by Marshal into the value pointed to by out.
func Unmarshal(data []byte, out any) error {
	s, err := ParseSkeleton(data)
	if err != nil {
		return err
	}
	return NewDecoder(s, DecoderOptions{}).Decode(out)
}
