package pipeline

import (
	"errors"
	"fmt"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// DecodeError reports an input record that could not be turned into a transaction.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("decode line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError reports a decoded transaction with the wrong amount presence for its type.
type ValidationError struct {
	Line        int
	Transaction domain.Transaction
	Err         error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate line %d (%s): %v", e.Line, e.Transaction, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsInputError reports whether err is a fatal input error: a *DecodeError or a *ValidationError.
func IsInputError(err error) bool {
	var de *DecodeError
	var ve *ValidationError
	return errors.As(err, &de) || errors.As(err, &ve)
}
