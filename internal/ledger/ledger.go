// Package ledger applies an ordered stream of transactions to client accounts.
package ledger

import (
	"sort"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// Ledger owns every account and the history of applied deposits and withdrawals.
// It is not safe for concurrent use: transactions must be applied one at a time,
// in arrival order.
type Ledger struct {
	accounts     map[domain.ClientID]*domain.Account
	transactions map[domain.TransactionID]*domain.Transaction
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		accounts:     make(map[domain.ClientID]*domain.Account),
		transactions: make(map[domain.TransactionID]*domain.Transaction),
	}
}

// Apply applies a validated transaction. The account named by the
// transaction is created on first reference.
//
// Anomalies never fail: a withdrawal without sufficient funds, anything on a
// locked account, or a control record whose target is unknown or not in the
// right dispute state leaves the ledger unchanged.
func (l *Ledger) Apply(tx domain.Transaction) {
	account := l.account(tx.ClientID())

	switch tx.Type() {
	case domain.TransactionTypeDeposit:
		amount, _ := tx.Amount()
		if account.AddFunds(amount) {
			l.record(tx)
		}

	case domain.TransactionTypeWithdrawal:
		amount, _ := tx.Amount()
		if account.RemoveFunds(amount) {
			l.record(tx)
		}

	case domain.TransactionTypeDispute:
		target, ok := l.transactions[tx.ID()]
		if !ok {
			return
		}
		amount, _ := target.Amount()
		account.HoldFunds(amount)
		target.SetDisputed()

	case domain.TransactionTypeResolve:
		target, ok := l.transactions[tx.ID()]
		if !ok || !target.Disputed() {
			return
		}
		amount, _ := target.Amount()
		account.RestoreFunds(amount)
		target.ClearDisputed()

	case domain.TransactionTypeChargeback:
		target, ok := l.transactions[tx.ID()]
		if !ok || !target.Disputed() {
			return
		}
		amount, _ := target.Amount()
		// Net effect: the held amount leaves held and total.
		account.RestoreFunds(amount)
		account.RemoveFunds(amount)
		account.Lock()
		target.ClearDisputed()
	}
}

// Snapshot returns the state of every account, ordered by client ID.
func (l *Ledger) Snapshot() []domain.AccountState {
	states := make([]domain.AccountState, 0, len(l.accounts))
	for _, a := range l.accounts {
		states = append(states, a.State())
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Client < states[j].Client
	})
	return states
}

// Account returns the current state of a client's account.
func (l *Ledger) Account(id domain.ClientID) (domain.AccountState, bool) {
	a, ok := l.accounts[id]
	if !ok {
		return domain.AccountState{}, false
	}
	return a.State(), true
}

// Transaction returns a copy of a stored deposit or withdrawal.
func (l *Ledger) Transaction(id domain.TransactionID) (domain.Transaction, bool) {
	tx, ok := l.transactions[id]
	if !ok {
		return domain.Transaction{}, false
	}
	return *tx, true
}

// Len returns the number of accounts.
func (l *Ledger) Len() int {
	return len(l.accounts)
}

func (l *Ledger) account(id domain.ClientID) *domain.Account {
	a, ok := l.accounts[id]
	if !ok {
		a = domain.NewAccount(id)
		l.accounts[id] = a
	}
	return a
}

func (l *Ledger) record(tx domain.Transaction) {
	stored := tx
	l.transactions[tx.ID()] = &stored
}
