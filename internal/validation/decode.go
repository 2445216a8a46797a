package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DroppedFields are removed from every decoded record.
var DroppedFields = []string{"_id"}

// ErrNotAnObject is returned when a JSON value in the input is not an object.
var ErrNotAnObject = errors.New("record is not a JSON object")

// Decode reads records from a single JSON object, a JSON array of objects,
// or newline-delimited objects. Numbers are kept as json.Number.
func Decode(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		records := make([]Record, 0, len(raw))
		for i, msg := range raw {
			rec, err := decodeObject(msg)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			records = append(records, rec)
		}
		return records, nil
	}

	var records []Record
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	for i := 0; ; i++ {
		var v interface{}
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		obj, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("value %d: %w", i, ErrNotAnObject)
		}
		records = append(records, clean(obj))
	}
	return records, nil
}

func decodeObject(msg json.RawMessage) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, ErrNotAnObject
	}
	return clean(obj), nil
}

func clean(obj map[string]interface{}) Record {
	for _, f := range DroppedFields {
		delete(obj, f)
	}
	return Record(obj)
}
