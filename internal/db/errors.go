package db

import "fmt"

// StoreWriteError reports a failed table replacement. The transaction was
// rolled back and the table still holds its previous contents.
type StoreWriteError struct {
	Table string
	Err   error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Table, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// StoreReadError reports a failed query against the store
type StoreReadError struct {
	Op  string
	Err error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreReadError) Unwrap() error {
	return e.Err
}
