package provenance

import (
	"errors"
	"fmt"
)

// ErrCapabilityUnavailable is returned when neither schema generation of the
// contract exposes the operation or event a call needs.
var ErrCapabilityUnavailable = errors.New("capability unavailable")

// LedgerReadError wraps a transport or RPC failure on a ledger read.
type LedgerReadError struct {
	Op  string
	Err error
}

func (e *LedgerReadError) Error() string {
	return fmt.Sprintf("ledger read %s: %v", e.Op, e.Err)
}

func (e *LedgerReadError) Unwrap() error {
	return e.Err
}

// LedgerWriteError wraps a failed transaction submission or confirmation.
// TxHash is empty when the submission itself failed.
type LedgerWriteError struct {
	Op     string
	TxHash string
	Err    error
}

func (e *LedgerWriteError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("ledger write %s (tx %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("ledger write %s: %v", e.Op, e.Err)
}

func (e *LedgerWriteError) Unwrap() error {
	return e.Err
}

// ReadError wraps err as a LedgerReadError unless it already is one
// or reports a missing capability.
func ReadError(op string, err error) error {
	if err == nil {
		return nil
	}
	var readErr *LedgerReadError
	if errors.As(err, &readErr) || errors.Is(err, ErrCapabilityUnavailable) {
		return err
	}
	return &LedgerReadError{Op: op, Err: err}
}
