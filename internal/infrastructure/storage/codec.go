package storage

import (
	"encoding/json"
	"fmt"

	"NewsRelay/internal/domain"
)

// encodeState serialises state stamped with version.
func encodeState(state domain.RunState, version int64) ([]byte, error) {
	state.Version = version
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return raw, nil
}

func decodeState(raw []byte) (domain.RunState, error) {
	var state domain.RunState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.RunState{}, fmt.Errorf("decode state: %w", err)
	}
	state.Normalize()
	return state, nil
}

func conflict(expected, actual int64) error {
	return fmt.Errorf("expected version %d, found %d: %w", expected, actual, domain.ErrStateConflict)
}
