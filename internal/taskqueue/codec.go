package taskqueue

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/petrijr/flowstate/pkg/api"
)

// taskFormat is bumped whenever wireTask changes incompatibly.
const taskFormat = 1

// ErrUnsupportedTaskFormat is returned by DecodeTask for data written by an
// incompatible encoder.
var ErrUnsupportedTaskFormat = errors.New("taskqueue: unsupported task format")

// wireTask is the persisted form of a Task. The payload is encoded on its
// own so that an unregistered payload type is reported against the task
// rather than failing the whole record opaquely.
type wireTask struct {
	Format     int
	ID         string
	Type       string
	InstanceID string
	Operation  string
	Payload    []byte
	EnqueuedAt int64
}

// EncodeTask serializes a Task for the persistent queues. Payload types must
// be registered with gob.Register.
func EncodeTask(t Task) ([]byte, error) {
	w := wireTask{
		Format:     taskFormat,
		ID:         t.ID,
		Type:       string(t.Type),
		InstanceID: t.InstanceID,
		Operation:  string(t.Operation),
	}
	if !t.EnqueuedAt.IsZero() {
		w.EnqueuedAt = t.EnqueuedAt.UnixNano()
	}
	if t.Payload != nil {
		var buf bytes.Buffer
		payload := t.Payload
		if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
			return nil, fmt.Errorf("encode payload of task %s (%T): %w", t.ID, t.Payload, err)
		}
		w.Payload = buf.Bytes()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeTask is the inverse of EncodeTask.
func DecodeTask(data []byte) (*Task, error) {
	var w wireTask
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return nil, err
	}
	if w.Format != taskFormat {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedTaskFormat, w.Format)
	}

	t := &Task{
		ID:         w.ID,
		Type:       TaskType(w.Type),
		InstanceID: w.InstanceID,
		Operation:  api.Operation(w.Operation),
	}
	if w.EnqueuedAt != 0 {
		t.EnqueuedAt = time.Unix(0, w.EnqueuedAt).UTC()
	}
	if len(w.Payload) > 0 {
		var payload any
		if err := gob.NewDecoder(bytes.NewReader(w.Payload)).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode payload of task %s: %w", w.ID, err)
		}
		t.Payload = payload
	}
	return t, nil
}
