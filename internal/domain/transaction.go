package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TransactionID identifies a deposit or withdrawal. Control transactions
// (dispute, resolve, chargeback) reuse the ID of the record they target.
type TransactionID uint32

// TransactionType is the kind of event carried by a Transaction.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeDispute    TransactionType = "dispute"
	TransactionTypeResolve    TransactionType = "resolve"
	TransactionTypeChargeback TransactionType = "chargeback"
)

// ErrInvalidTransaction is wrapped by Validate when a record has the wrong
// amount presence for its type.
var ErrInvalidTransaction = errors.New("invalid transaction")

// ErrUnknownTransactionType is returned by ParseTransactionType.
var ErrUnknownTransactionType = errors.New("unknown transaction type")

// ParseTransactionType parses a type name, ignoring case and surrounding whitespace.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal,
		TransactionTypeDispute, TransactionTypeResolve, TransactionTypeChargeback:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTransactionType, s)
	}
}

// MovesFunds reports whether the type is a deposit or withdrawal.
func (t TransactionType) MovesFunds() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeWithdrawal
}

// Transaction is one input event.
// Everything except the dispute flag is fixed at construction; the flag is
// only meaningful on deposits and withdrawals held in the ledger history.
type Transaction struct {
	typ       TransactionType
	client    ClientID
	id        TransactionID
	amount    decimal.NullDecimal
	inDispute bool
}

// NewTransaction builds a transaction from decoded fields. It does not validate.
func NewTransaction(typ TransactionType, client ClientID, id TransactionID, amount decimal.NullDecimal) Transaction {
	return Transaction{
		typ:    typ,
		client: client,
		id:     id,
		amount: amount,
	}
}

// NewDeposit creates a deposit of amount.
func NewDeposit(client ClientID, id TransactionID, amount decimal.Decimal) Transaction {
	return NewTransaction(TransactionTypeDeposit, client, id, decimal.NewNullDecimal(amount))
}

// NewWithdrawal creates a withdrawal of amount.
func NewWithdrawal(client ClientID, id TransactionID, amount decimal.Decimal) Transaction {
	return NewTransaction(TransactionTypeWithdrawal, client, id, decimal.NewNullDecimal(amount))
}

// NewDispute creates a dispute against transaction id.
func NewDispute(client ClientID, id TransactionID) Transaction {
	return NewTransaction(TransactionTypeDispute, client, id, decimal.NullDecimal{})
}

// NewResolve creates a resolve for transaction id.
func NewResolve(client ClientID, id TransactionID) Transaction {
	return NewTransaction(TransactionTypeResolve, client, id, decimal.NullDecimal{})
}

// NewChargeback creates a chargeback for transaction id.
func NewChargeback(client ClientID, id TransactionID) Transaction {
	return NewTransaction(TransactionTypeChargeback, client, id, decimal.NullDecimal{})
}

// Type returns the transaction kind.
func (t *Transaction) Type() TransactionType { return t.typ }

// ClientID returns the account the transaction applies to.
func (t *Transaction) ClientID() ClientID { return t.client }

// ID returns the transaction ID. Disputes and their follow-ups carry the referenced ID.
func (t *Transaction) ID() TransactionID { return t.id }

// Amount returns the amount and whether one is present.
func (t *Transaction) Amount() (decimal.Decimal, bool) {
	return t.amount.Decimal, t.amount.Valid
}

// Disputed reports whether the transaction is currently under dispute.
func (t *Transaction) Disputed() bool {
	return t.inDispute
}

// SetDisputed marks a deposit or withdrawal as disputed. No-op for control types.
func (t *Transaction) SetDisputed() {
	if t.typ.MovesFunds() {
		t.inDispute = true
	}
}

// ClearDisputed clears the dispute flag of a deposit or withdrawal. No-op for control types.
func (t *Transaction) ClearDisputed() {
	if t.typ.MovesFunds() {
		t.inDispute = false
	}
}

// Validate checks the record against its own fields only.
// Deposits and withdrawals need an amount; disputes, resolves and chargebacks
// must carry none and must not be flagged as disputed. The sign of the amount
// is not checked.
func (t *Transaction) Validate() error {
	switch t.typ {
	case TransactionTypeDeposit, TransactionTypeWithdrawal:
		if !t.amount.Valid {
			return fmt.Errorf("%w: %s %d requires an amount", ErrInvalidTransaction, t.typ, t.id)
		}
		return nil
	case TransactionTypeDispute, TransactionTypeResolve, TransactionTypeChargeback:
		if t.amount.Valid {
			return fmt.Errorf("%w: %s %d must not carry an amount", ErrInvalidTransaction, t.typ, t.id)
		}
		if t.inDispute {
			return fmt.Errorf("%w: %s %d cannot itself be disputed", ErrInvalidTransaction, t.typ, t.id)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, t.typ)
	}
}

// String renders the transaction for error messages.
func (t Transaction) String() string {
	if t.amount.Valid {
		return fmt.Sprintf("%s client=%d tx=%d amount=%s", t.typ, t.client, t.id, t.amount.Decimal)
	}
	return fmt.Sprintf("%s client=%d tx=%d", t.typ, t.client, t.id)
}
