// Package columns converts the map and error fields of a saga record to and
// from the JSON documents stored by the SQL and document drivers.
package columns

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/saga"
)

// Encoded holds the JSON columns of a record.
type Encoded struct {
	Data     []byte
	TempData []byte
	// Error is nil when the record carries no error.
	Error []byte
}

// Encode serialises the JSON columns of rec.
func Encode(rec saga.Record) (Encoded, error) {
	out := Encoded{Data: rec.Data}
	if len(out.Data) == 0 {
		out.Data = []byte("null")
	}

	tempData := rec.TempData
	if tempData == nil {
		tempData = map[string]any{}
	}

	var err error
	out.TempData, err = json.Marshal(tempData)
	if err != nil {
		return Encoded{}, fmt.Errorf("encode temp data: %w", err)
	}

	if rec.Error != nil {
		out.Error, err = json.Marshal(rec.Error)
		if err != nil {
			return Encoded{}, fmt.Errorf("encode error: %w", err)
		}
	}

	return out, nil
}

// Decode fills the JSON fields of rec from stored columns.
func Decode(rec *saga.Record, data, tempData, errDoc []byte) error {
	rec.Data = append(json.RawMessage(nil), data...)

	rec.TempData = map[string]any{}
	if len(tempData) > 0 {
		if err := json.Unmarshal(tempData, &rec.TempData); err != nil {
			return fmt.Errorf("decode temp data: %w", err)
		}
	}

	rec.Error = nil
	if len(errDoc) > 0 && string(errDoc) != "null" {
		var e result.Error
		if err := json.Unmarshal(errDoc, &e); err != nil {
			return fmt.Errorf("decode error: %w", err)
		}
		rec.Error = &e
	}

	return nil
}
