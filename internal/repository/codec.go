package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nimasrn/congregation-messenger/internal/store"
)

var ErrNotFound = store.ErrNotFound

// toFields turns an entity into store fields through its json tags.
func toFields(entity any) (store.Fields, error) {
	b, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity: %w", err)
	}
	fields := store.Fields{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode entity: %w", err)
	}
	return fields, nil
}

func fromFields(fields store.Fields, entity any) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to decode entity: %w", err)
	}
	if err := json.Unmarshal(b, entity); err != nil {
		return fmt.Errorf("failed to decode entity: %w", err)
	}
	return nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
