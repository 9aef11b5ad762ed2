package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"mailtriage/internal/model"
)

func jsonMarshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(b), nil
}

// decodeInFlight reads the active run's in-progress accumulator from
// KV. Absent or empty resolves to a zero-value accumulator rather than
// an error — a run that hasn't produced any findings yet is normal.
func (e *Engine) decodeInFlight(ctx context.Context) (model.AccumulatorFile, error) {
	raw, err := e.kv.GetOrEmpty(ctx, keyAccumulatedInFlight)
	if err != nil {
		return model.AccumulatorFile{}, err
	}
	if raw == "" {
		return model.AccumulatorFile{}, nil
	}
	var acc model.AccumulatorFile
	if err := json.Unmarshal([]byte(raw), &acc); err != nil {
		return model.AccumulatorFile{}, fmt.Errorf("decode in-flight accumulator: %w", err)
	}
	return acc, nil
}

func (e *Engine) encodeInFlight(ctx context.Context, acc model.AccumulatorFile) error {
	raw, err := jsonMarshal(acc)
	if err != nil {
		return err
	}
	return e.kv.Set(ctx, keyAccumulatedInFlight, raw)
}
