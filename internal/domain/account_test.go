package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// accountWith builds an account with the given balances; total is derived.
func accountWith(available, held string) *Account {
	a := NewAccount(500)
	a.available = d(available)
	a.held = d(held)
	a.total = a.available.Add(a.held)
	return a
}

func assertBalances(t *testing.T, a *Account, available, held, total string) {
	t.Helper()
	assert.True(t, a.Available().Equal(d(available)), "available = %s, want %s", a.Available(), available)
	assert.True(t, a.Held().Equal(d(held)), "held = %s, want %s", a.Held(), held)
	assert.True(t, a.Total().Equal(d(total)), "total = %s, want %s", a.Total(), total)
	assert.True(t, a.Total().Equal(a.Available().Add(a.Held())), "total != available + held")
}

func TestNewAccount(t *testing.T) {
	a := NewAccount(7)

	assert.Equal(t, ClientID(7), a.ID())
	assert.False(t, a.Locked())
	assertBalances(t, a, "0", "0", "0")
}

func TestAccount_AddFunds(t *testing.T) {
	a := accountWith("100", "0")

	require.True(t, a.AddFunds(d("10")))
	assertBalances(t, a, "110", "0", "110")
}

func TestAccount_RemoveFunds(t *testing.T) {
	tests := []struct {
		name      string
		amount    string
		wantOK    bool
		available string
	}{
		{name: "partial", amount: "10", wantOK: true, available: "90"},
		{name: "exact", amount: "100", wantOK: true, available: "0"},
		{name: "insufficient", amount: "100.0001", wantOK: false, available: "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := accountWith("100", "0")

			assert.Equal(t, tt.wantOK, a.RemoveFunds(d(tt.amount)))
			assertBalances(t, a, tt.available, "0", tt.available)
		})
	}
}

func TestAccount_HoldFunds(t *testing.T) {
	a := accountWith("100", "0")

	require.True(t, a.HoldFunds(d("10")))
	assertBalances(t, a, "90", "10", "100")
}

func TestAccount_HoldFundsCanOverdrawAvailable(t *testing.T) {
	a := accountWith("5", "0")

	require.True(t, a.HoldFunds(d("10")))
	assertBalances(t, a, "-5", "10", "5")
}

func TestAccount_RestoreFunds(t *testing.T) {
	a := accountWith("90", "10")

	require.True(t, a.RestoreFunds(d("10")))
	assertBalances(t, a, "100", "0", "100")

	assert.False(t, a.RestoreFunds(d("0.5")), "restore beyond held must fail")
	assertBalances(t, a, "100", "0", "100")
}

func TestAccount_LockedRejectsEveryMutation(t *testing.T) {
	a := accountWith("90", "10")
	a.Lock()

	assert.False(t, a.AddFunds(d("1")))
	assert.False(t, a.RemoveFunds(d("1")))
	assert.False(t, a.HoldFunds(d("1")))
	assert.False(t, a.RestoreFunds(d("1")))
	assertBalances(t, a, "90", "10", "100")
}

func TestAccount_LockUnlock(t *testing.T) {
	a := NewAccount(500)

	a.Lock()
	assert.True(t, a.Locked())

	a.Unlock()
	assert.False(t, a.Locked())
	assert.True(t, a.AddFunds(d("1")))
}

func TestAccount_State(t *testing.T) {
	a := accountWith("90", "10")
	a.Lock()

	s := a.State()
	assert.Equal(t, ClientID(500), s.Client)
	assert.True(t, s.Available.Equal(d("90")))
	assert.True(t, s.Held.Equal(d("10")))
	assert.True(t, s.Total.Equal(d("100")))
	assert.True(t, s.Locked)
}
