package application

import (
	"errors"
	"fmt"
)

var (
	ErrConnection = errors.New("connection error")
	ErrCommit     = errors.New("commit error")
	ErrRollback   = errors.New("rollback error")

	ErrTxConsumed      = errors.New("transaction already committed or rolled back")
	ErrTxInUse         = errors.New("transaction is held by another operation")
	ErrTxNotBorrowed   = errors.New("transaction used outside of an operation")
	ErrCarrierMismatch = errors.New("carrier returned a foreign transaction")
)

// ConnectionError means no transaction could be started. No operation ran.
type ConnectionError struct{ Err error }

func (e *ConnectionError) Error() string        { return fmt.Sprintf("begin transaction: %v", e.Err) }
func (e *ConnectionError) Unwrap() error        { return e.Err }
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// CommitError means every operation succeeded but the commit did not.
// Durability of the writes is unconfirmed.
type CommitError struct{ Err error }

func (e *CommitError) Error() string        { return fmt.Sprintf("commit transaction: %v", e.Err) }
func (e *CommitError) Unwrap() error        { return e.Err }
func (e *CommitError) Is(target error) bool { return target == ErrCommit }

// RollbackError is joined to the error that caused the rollback.
type RollbackError struct{ Err error }

func (e *RollbackError) Error() string        { return fmt.Sprintf("rollback transaction: %v", e.Err) }
func (e *RollbackError) Unwrap() error        { return e.Err }
func (e *RollbackError) Is(target error) bool { return target == ErrRollback }

func connectionError(err error) error {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Err: err}
}

// withRollback attaches a failed rollback to cause without replacing it.
func withRollback(cause, rbErr error) error {
	if rbErr == nil {
		return cause
	}
	return errors.Join(cause, &RollbackError{Err: rbErr})
}
