package persistence

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/petrijr/flowstate/pkg/api"
)

// EncodeValue serializes arbitrary Go values using encoding/gob.
// The value is encoded as an interface, so concrete payload types must be
// registered with gob.Register by the caller.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	// Important: encode as interface{} so we can safely decode into interface{}.
	var iv = v
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue is the inverse of EncodeValue.
func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var iv any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// storedRecord is the serialized shape of an api.TransitionRecord.
// Timestamps are kept as Unix nanoseconds so every backend stores the same
// precision.
type storedRecord struct {
	From      string `bson:"from"`
	To        string `bson:"to"`
	Operation string `bson:"op"`
	At        int64  `bson:"at"`
}

func toStoredRecord(rec api.TransitionRecord) storedRecord {
	return storedRecord{
		From:      string(rec.From),
		To:        string(rec.To),
		Operation: string(rec.Operation),
		At:        rec.At.UnixNano(),
	}
}

func (r storedRecord) record() api.TransitionRecord {
	return api.TransitionRecord{
		From:      api.State(r.From),
		To:        api.State(r.To),
		Operation: api.Operation(r.Operation),
		At:        time.Unix(0, r.At).UTC(),
	}
}

func encodeRecord(rec api.TransitionRecord) ([]byte, error) {
	var buf bytes.Buffer
	sr := toStoredRecord(rec)
	if err := gob.NewEncoder(&buf).Encode(&sr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (api.TransitionRecord, error) {
	var sr storedRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&sr); err != nil {
		return api.TransitionRecord{}, err
	}
	return sr.record(), nil
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
