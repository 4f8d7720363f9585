// Package params resolves and validates the parameters of a job run.
package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"batchplane/internal/batch"
)

// DecodeConfiguration decodes a caller-supplied JSON object of parameter
// overrides. An empty payload yields an empty map.
func DecodeConfiguration(payload string) (map[string]any, error) {
	if strings.TrimSpace(payload) == "" {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()

	var overrides map[string]any
	if err := dec.Decode(&overrides); err != nil {
		return nil, &batch.ConfigurationDecodeError{Payload: payload, Err: err}
	}
	if overrides == nil {
		return nil, &batch.ConfigurationDecodeError{Payload: payload, Err: errors.New("configuration must be a JSON object")}
	}
	if dec.More() {
		return nil, &batch.ConfigurationDecodeError{Payload: payload, Err: errors.New("unexpected data after JSON object")}
	}

	return normalizeNumbers(overrides).(map[string]any), nil
}

// Resolve builds the parameter set of a fresh run. Layers, lowest first:
// schema defaults, the definition's stored raw parameters, overrides.
// Unknown override keys are kept; enforcing the schema is the validator's job.
func Resolve(schema Schema, stored, overrides map[string]any) *batch.JobParameters {
	merged := make(map[string]any, len(schema.Defaults)+len(stored)+len(overrides))
	for k, v := range schema.Defaults {
		merged[k] = v
	}
	for k, v := range stored {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return batch.NewJobParameters(merged)
}

// normalizeNumbers turns json.Number values into int64 when integral and
// float64 otherwise, so "--config" values compare like stored ones.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, inner := range t {
			t[k] = normalizeNumbers(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = normalizeNumbers(inner)
		}
		return t
	}
	return v
}
