// Package projection parses upstream payloads and projects them onto the
// stored entity types through explicit field allow-lists. Fields outside an
// allow-list are never read, so upstream shape changes cannot leak into
// storage.
package projection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrShape reports a payload that is not an array of JSON objects.
var ErrShape = errors.New("payload is not an array of objects")

// Record is one upstream object. Numbers are kept as json.Number.
type Record map[string]interface{}

// RecordSet is an upstream array of objects.
type RecordSet []Record

// ParseRecordSet decodes raw JSON and checks it is an array of objects.
func ParseRecordSet(raw []byte) (RecordSet, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrShape)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShape, err)
	}
	return FromValue(v)
}

// FromValue checks an already decoded value.
func FromValue(v interface{}) (RecordSet, error) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrShape, v)
	}
	out := make(RecordSet, 0, len(arr))
	for i, el := range arr {
		obj, ok := el.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %T", ErrShape, i, el)
		}
		out = append(out, Record(obj))
	}
	return out, nil
}

// Marshal encodes the set for storage in an attempt payload.
func (rs RecordSet) Marshal() ([]byte, error) {
	if rs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(rs)
}
