package mvcc

import "errors"

// ErrLockTimeout is returned when a bounded wait for a row's writer
// lock expires before the lock is acquired.
var ErrLockTimeout = errors.New("mvcc: lock wait timed out")

// ErrNotFound is returned when a read finds no visible value for a key.
var ErrNotFound = errors.New("mvcc: key not found")

// ErrInvalidArgument is returned for operations given an empty key.
var ErrInvalidArgument = errors.New("mvcc: invalid argument")

// ErrTransactionAborted is returned when a transaction's lock or
// execute phase fails and every recorded operation has been undone.
var ErrTransactionAborted = errors.New("mvcc: transaction aborted")

// ErrUnsupportedCopy is returned when cloning a row whose head record
// has not reached the Committed state.
var ErrUnsupportedCopy = errors.New("mvcc: cannot copy a row with an uncommitted head record")
