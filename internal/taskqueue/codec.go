package taskqueue

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
)

// codecVersion prefixes every encoded task so stored payloads can be
// migrated if the Task layout changes.
const codecVersion byte = 1

var ErrUnknownCodecVersion = errors.New("taskqueue: unknown task encoding")

// EncodeTask serializes t for durable queues.
func EncodeTask(t Task) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(codecVersion)
	if err := gob.NewEncoder(&buf).Encode(&t); err != nil {
		return nil, fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	return buf.Bytes(), nil
}

// DecodeTask reverses EncodeTask.
func DecodeTask(data []byte) (*Task, error) {
	if len(data) == 0 || data[0] != codecVersion {
		return nil, ErrUnknownCodecVersion
	}
	var t Task
	if err := gob.NewDecoder(bytes.NewReader(data[1:])).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}
