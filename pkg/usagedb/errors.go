package usagedb

import (
	"errors"
	"fmt"
)

// NotFoundError means the queried account or device has no stored data.
type NotFoundError struct {
	AccountKey string
	Hostname   string
}

func (e *NotFoundError) Error() string {
	key := e.AccountKey
	if len(key) > 8 {
		key = key[:8] + "..."
	}
	if e.Hostname != "" {
		return fmt.Sprintf("no data for device %q of account %s", e.Hostname, key)
	}
	return fmt.Sprintf("no data for account %s", key)
}

// StorageError wraps a driver or transaction failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("usage db %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
