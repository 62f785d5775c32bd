package services

import (
	"fmt"
	"log"
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// InvalidStateError rejects a timer transition the item's status does not allow.
type InvalidStateError struct{ Message string }

func (e *InvalidStateError) Error() string { return e.Message }

// StorageError wraps a failure of the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr logs err once and wraps it for the handler layer.
func storageErr(op string, err error) error {
	log.Printf("✗ %s: %v", op, err)
	return &StorageError{Op: op, Err: err}
}
