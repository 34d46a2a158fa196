package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
)

// ProcessStream decodes, validates and applies every transaction from r, in order.
// It stops at the first malformed or invalid record and returns a *DecodeError or
// *ValidationError; the ledger then holds a partial result that must not be reported.
// It returns the number of transactions applied.
func ProcessStream(ctx context.Context, r io.Reader, l *ledger.Ledger) (int, error) {
	dec := NewDecoder(r)
	applied := 0

	for {
		if err := ctx.Err(); err != nil {
			return applied, fmt.Errorf("ProcessStream: %w", err)
		}

		tx, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return applied, nil
		}
		if err != nil {
			return applied, err
		}

		if err := tx.Validate(); err != nil {
			return applied, &ValidationError{Line: dec.Line(), Transaction: tx, Err: err}
		}

		l.Apply(tx)
		applied++
	}
}

// WriteAccounts writes one CSV row per account with balances fixed to four decimals.
func WriteAccounts(w io.Writer, accounts []domain.AccountState) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(reportHeader); err != nil {
		return fmt.Errorf("WriteAccounts: header: %w", err)
	}

	row := make([]string, len(reportHeader))
	for _, a := range accounts {
		row[0] = strconv.FormatUint(uint64(a.Client), 10)
		row[1] = a.Available.StringFixed(AmountScale)
		row[2] = a.Held.StringFixed(AmountScale)
		row[3] = a.Total.StringFixed(AmountScale)
		row[4] = strconv.FormatBool(a.Locked)

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("WriteAccounts: client %d: %w", a.Client, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteAccounts: flush: %w", err)
	}
	return nil
}
