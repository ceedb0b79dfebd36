package store

import (
	"errors"
	"fmt"

	doorstep "github.com/goliatone/go-doorstep"
)

var (
	errKeyRequired      = errors.New("storage key required")
	errSnapshotRequired = errors.New("snapshot required")
)

func errNotConfigured(backend string) error {
	return fmt.Errorf("%s storage not configured", backend)
}

func storageError(op, key string, source error) error {
	if doorstep.ErrorCode(source) != "" {
		return source
	}
	return doorstep.NewError(doorstep.ErrStorage, fmt.Sprintf("storage %s failed", op), source, map[string]any{
		"operation": op,
		"key":       key,
	})
}

func versionConflict(key string, expected, actual int) error {
	return doorstep.NewError(doorstep.ErrVersionConflict, "", nil, map[string]any{
		"key":              key,
		"expected_version": expected,
		"actual_version":   actual,
	})
}
