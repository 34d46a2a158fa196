package domain

import (
	"github.com/shopspring/decimal"
)

// ClientID identifies an account holder. IDs are assigned externally and never reused.
type ClientID uint16

// Account holds the balances of a single client.
// Balances change only through AddFunds, RemoveFunds, HoldFunds and RestoreFunds,
// and none of them succeed while the account is locked.
type Account struct {
	id        ClientID
	available decimal.Decimal
	held      decimal.Decimal
	total     decimal.Decimal
	locked    bool
}

// AccountState is a read-only view of an account at a point in time.
type AccountState struct {
	Client    ClientID        `json:"client"`
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Total     decimal.Decimal `json:"total"`
	Locked    bool            `json:"locked"`
}

// NewAccount creates an unlocked account with zero balances.
func NewAccount(id ClientID) *Account {
	return &Account{
		id:        id,
		available: decimal.Zero,
		held:      decimal.Zero,
		total:     decimal.Zero,
	}
}

// ID returns the client ID owning the account.
func (a *Account) ID() ClientID {
	return a.id
}

// Available returns the funds usable for withdrawals and new holds.
func (a *Account) Available() decimal.Decimal {
	return a.available
}

// Held returns the funds frozen by open disputes.
func (a *Account) Held() decimal.Decimal {
	return a.held
}

// Total returns available + held.
func (a *Account) Total() decimal.Decimal {
	return a.total
}

// Locked reports whether the account has been frozen by a chargeback.
func (a *Account) Locked() bool {
	return a.locked
}

// AddFunds credits amount to available and total.
// Fails only when the account is locked.
func (a *Account) AddFunds(amount decimal.Decimal) bool {
	if a.locked {
		return false
	}
	a.available = a.available.Add(amount)
	a.total = a.total.Add(amount)
	return true
}

// RemoveFunds debits amount from available and total.
// Fails when the account is locked or available < amount.
func (a *Account) RemoveFunds(amount decimal.Decimal) bool {
	if a.locked || a.available.LessThan(amount) {
		return false
	}
	a.available = a.available.Sub(amount)
	a.total = a.total.Sub(amount)
	return true
}

// HoldFunds moves amount from available to held.
// Available is allowed to go negative: the amount held is always the amount
// of a previously applied transaction.
func (a *Account) HoldFunds(amount decimal.Decimal) bool {
	if a.locked {
		return false
	}
	a.available = a.available.Sub(amount)
	a.held = a.held.Add(amount)
	return true
}

// RestoreFunds moves amount from held back to available.
// Fails when the account is locked or held < amount.
func (a *Account) RestoreFunds(amount decimal.Decimal) bool {
	if a.locked || a.held.LessThan(amount) {
		return false
	}
	a.available = a.available.Add(amount)
	a.held = a.held.Sub(amount)
	return true
}

// Lock freezes the account. Nothing in transaction processing undoes it.
func (a *Account) Lock() {
	a.locked = true
}

// Unlock is an administrative override; it is never called while applying transactions.
func (a *Account) Unlock() {
	a.locked = false
}

// State returns a copy of the current balances.
func (a *Account) State() AccountState {
	return AccountState{
		Client:    a.id,
		Available: a.available,
		Held:      a.held,
		Total:     a.total,
		Locked:    a.locked,
	}
}
