package persistence

import (
	"bytes"
	"encoding/gob"
	"errors"

	"github.com/petrijr/envroute/pkg/api"
)

// EncodeSnapshot serializes a snapshot using encoding/gob.
func EncodeSnapshot(s *api.Snapshot) ([]byte, error) {
	if s == nil || s.Workflow == nil {
		return nil, errors.New("gob: cannot encode empty snapshot")
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot is the inverse of EncodeSnapshot.
func DecodeSnapshot(data []byte) (*api.Snapshot, error) {
	if len(data) == 0 {
		return nil, errors.New("gob: empty snapshot payload")
	}
	var s api.Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, err
	}
	s.SortSteps()
	return &s, nil
}
