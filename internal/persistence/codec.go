package persistence

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/petrijr/sagaflow/pkg/api"
)

// EncodeValue serializes an arbitrary value with encoding/gob. The value is
// encoded as an interface, so concrete non-builtin types must be registered
// with gob.Register by the package that owns them.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// DecodeValue reverses EncodeValue. Empty data decodes to the zero value.
func DecodeValue[T any](data []byte) (T, error) {
	var zero T
	if len(data) == 0 {
		return zero, nil
	}
	var v any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return zero, fmt.Errorf("decode value: %w", err)
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("decode value: expected %T, got %T", zero, v)
	}
	return out, nil
}

// resultRecord is the stored form of an api.RunResult. Input and output are
// encoded separately so a result whose payload type is unknown to the reader
// still fails loudly instead of decoding partially.
type resultRecord struct {
	ID         string
	Workflow   string
	Status     string
	Input      []byte
	Output     []byte
	Failure    *api.Error
	FailedStep string

	Steps         []api.StepRecord
	Compensations []api.CompensationRecord

	StartedAt  time.Time
	FinishedAt time.Time
}

// EncodeResult gob-encodes a run result.
func EncodeResult(r *api.RunResult) ([]byte, error) {
	in, err := EncodeValue(r.Input)
	if err != nil {
		return nil, err
	}
	out, err := EncodeValue(r.Output)
	if err != nil {
		return nil, err
	}

	rec := resultRecord{
		ID:            r.ID,
		Workflow:      r.Workflow,
		Status:        string(r.Status),
		Input:         in,
		Output:        out,
		Failure:       r.Failure,
		FailedStep:    r.FailedStep,
		Steps:         r.Steps,
		Compensations: r.Compensations,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&rec); err != nil {
		return nil, fmt.Errorf("encode result %s: %w", r.ID, err)
	}
	return buf.Bytes(), nil
}

// DecodeResult gob-decodes a run result written by EncodeResult.
func DecodeResult(data []byte) (*api.RunResult, error) {
	if len(data) == 0 {
		return nil, ErrResultNotFound
	}
	var rec resultRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	in, err := DecodeValue[any](rec.Input)
	if err != nil {
		return nil, err
	}
	out, err := DecodeValue[any](rec.Output)
	if err != nil {
		return nil, err
	}

	return &api.RunResult{
		ID:            rec.ID,
		Workflow:      rec.Workflow,
		Status:        api.Status(rec.Status),
		Input:         in,
		Output:        out,
		Failure:       rec.Failure,
		FailedStep:    rec.FailedStep,
		Steps:         rec.Steps,
		Compensations: rec.Compensations,
		StartedAt:     rec.StartedAt,
		FinishedAt:    rec.FinishedAt,
	}, nil
}
