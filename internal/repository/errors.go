package repository

import "fmt"

// NotFoundError is returned when an operation names a job id that is not
// present in the table it targets.
type NotFoundError struct {
	ID    string
	Table string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job %s not found in %s table", e.ID, e.Table)
}

// StorageError wraps an I/O failure while loading or persisting a table.
// Storage failures are fatal to the invoking call; the repository never
// retries its own writes.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
