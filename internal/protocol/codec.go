package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
)

// RecordSeparator terminates every record on the wire.
const RecordSeparator byte = 0x1e

// Record is one decoded JSON value taken from a frame.
type Record []byte

// Type returns the integer "type" field of the record.
// ok is false when the record is not an object or the field is missing or not an integer.
func (r Record) Type() (int, bool) {
	var envelope struct {
		Type json.RawMessage `json:"type"`
	}
	if err := sonic.ConfigStd.Unmarshal(r, &envelope); err != nil || len(envelope.Type) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(string(envelope.Type))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Decode unmarshals the record into v.
func (r Record) Decode(v interface{}) error {
	return sonic.ConfigStd.Unmarshal(r, v)
}

// String returns the raw JSON text.
func (r Record) String() string {
	return string(r)
}

// Decode splits a raw frame into records. Empty segments and segments that
// are not valid JSON are dropped; the remaining records keep their order.
func Decode(frame []byte) []Record {
	segments := bytes.Split(frame, []byte{RecordSeparator})
	records := make([]Record, 0, len(segments))
	for _, seg := range segments {
		seg = bytes.TrimSpace(seg)
		if len(seg) == 0 {
			continue
		}
		if !sonic.Valid(seg) {
			continue
		}
		rec := make(Record, len(seg))
		copy(rec, seg)
		records = append(records, rec)
	}
	return records
}

// DecodeString is Decode for text frames.
func DecodeString(frame string) []Record {
	return Decode([]byte(frame))
}

// Encode serializes v and appends exactly one record separator.
func Encode(v interface{}) ([]byte, error) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return append(data, RecordSeparator), nil
}
