package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// AccountSnapshotRow is one account of a run's final snapshot.
// Balances are stored as NUMERIC.
type AccountSnapshotRow struct {
	RunID    string `bigquery:"run_id"`    // REQUIRED
	ClientID int64  `bigquery:"client_id"` // REQUIRED

	Available *big.Rat `bigquery:"available"` // REQUIRED NUMERIC
	Held      *big.Rat `bigquery:"held"`      // REQUIRED NUMERIC
	Total     *big.Rat `bigquery:"total"`     // REQUIRED NUMERIC
	Locked    bool     `bigquery:"locked"`    // REQUIRED

	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

// SnapshotRows maps account states to rows sharing runID and exportedAt.
func SnapshotRows(runID string, accounts []domain.AccountState, exportedAt time.Time) []*AccountSnapshotRow {
	rows := make([]*AccountSnapshotRow, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, &AccountSnapshotRow{
			RunID:      runID,
			ClientID:   int64(a.Client),
			Available:  a.Available.Rat(),
			Held:       a.Held.Rat(),
			Total:      a.Total.Rat(),
			Locked:     a.Locked,
			ExportedTS: exportedAt,
		})
	}
	return rows
}

// State converts the row back to an account state.
func (r *AccountSnapshotRow) State() (domain.AccountState, error) {
	if r.ClientID < 0 || r.ClientID > int64(^domain.ClientID(0)) {
		return domain.AccountState{}, fmt.Errorf("AccountSnapshotRow.State: client_id %d out of range", r.ClientID)
	}

	available, err := ratToDecimal(r.Available)
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("AccountSnapshotRow.State: available: %w", err)
	}
	held, err := ratToDecimal(r.Held)
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("AccountSnapshotRow.State: held: %w", err)
	}
	total, err := ratToDecimal(r.Total)
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("AccountSnapshotRow.State: total: %w", err)
	}

	return domain.AccountState{
		Client:    domain.ClientID(r.ClientID),
		Available: available,
		Held:      held,
		Total:     total,
		Locked:    r.Locked,
	}, nil
}

// NUMERIC carries at most 9 fractional digits.
func ratToDecimal(r *big.Rat) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(r.FloatString(9))
}
