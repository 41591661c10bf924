package saga

import (
	"fmt"
	"maps"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/shortlink-org/commandbus/cqrs/result"
)

// Keys of State.TempData written by the engine.
const (
	TempCompensationError = "compensationError"
	TempCompensationStep  = "compensationStep"
	// TempCompensating is true from the moment compensation starts until the
	// saga is COMPENSATED.
	TempCompensating = "compensating"
	// TempCompensatedSteps lists the undo actions that already succeeded.
	TempCompensatedSteps = "compensatedSteps"
)

// State is the typed view of a saga.
type State[D any] struct {
	ID          string
	Type        string
	Status      Status
	CurrentStep string
	Data        D
	TempData    map[string]any
	Error       *result.Error
	// Version is the optimistic-lock token. It grows by one per save.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	// ExpiresAt and TTL are metadata for external garbage collection.
	ExpiresAt time.Time
	TTL       time.Duration
}

// Record is the persisted form of a saga: data is kept as raw JSON so that
// repositories stay independent of workflow types.
type Record struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      Status          `json:"status"`
	CurrentStep string          `json:"currentStep,omitempty"`
	Data        json.RawMessage `json:"data"`
	TempData    map[string]any  `json:"tempData,omitempty"`
	Error       *result.Error   `json:"error,omitempty"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	TTL         time.Duration   `json:"ttl"`
}

// Clone returns a copy that shares no mutable memory with r.
func (r Record) Clone() Record {
	out := r
	if r.Data != nil {
		out.Data = append(json.RawMessage(nil), r.Data...)
	}
	if r.TempData != nil {
		out.TempData = maps.Clone(r.TempData)
	}
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}

	return out
}

// Key identifies a saga in a repository.
func (r Record) Key() string {
	return r.Type + "/" + r.ID
}

func encodeState[D any](s *State[D]) (Record, error) {
	data, err := json.Marshal(s.Data)
	if err != nil {
		return Record{}, fmt.Errorf("encode saga %s/%s data: %w", s.Type, s.ID, err)
	}

	return Record{
		ID:          s.ID,
		Type:        s.Type,
		Status:      s.Status,
		CurrentStep: s.CurrentStep,
		Data:        data,
		TempData:    maps.Clone(s.TempData),
		Error:       s.Error,
		Version:     s.Version,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		ExpiresAt:   s.ExpiresAt,
		TTL:         s.TTL,
	}, nil
}

func decodeState[D any](rec Record) (*State[D], error) {
	var data D
	if len(rec.Data) > 0 && string(rec.Data) != "null" {
		if err := json.Unmarshal(rec.Data, &data); err != nil {
			return nil, fmt.Errorf("decode saga %s/%s data: %w", rec.Type, rec.ID, err)
		}
	}

	tempData := maps.Clone(rec.TempData)
	if tempData == nil {
		tempData = map[string]any{}
	}

	return &State[D]{
		ID:          rec.ID,
		Type:        rec.Type,
		Status:      rec.Status,
		CurrentStep: rec.CurrentStep,
		Data:        data,
		TempData:    tempData,
		Error:       rec.Error,
		Version:     rec.Version,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		ExpiresAt:   rec.ExpiresAt,
		TTL:         rec.TTL,
	}, nil
}

// mergeData shallow-merges patch into the top-level JSON object of data.
// Later keys overwrite; nested values are replaced wholesale.
func mergeData[D any](data D, patch map[string]any) (D, error) {
	if len(patch) == 0 {
		return data, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return data, fmt.Errorf("encode saga data: %w", err)
	}

	fields := map[string]any{}
	if string(raw) != "null" {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return data, fmt.Errorf("saga data is not a JSON object: %w", err)
		}
	}

	maps.Copy(fields, patch)

	raw, err = json.Marshal(fields)
	if err != nil {
		return data, fmt.Errorf("encode patched saga data: %w", err)
	}

	var out D
	if err := json.Unmarshal(raw, &out); err != nil {
		return data, fmt.Errorf("decode patched saga data: %w", err)
	}

	return out, nil
}
