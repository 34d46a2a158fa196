package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
)

// process runs input through a fresh ledger and renders the report.
func process(t *testing.T, input string) (string, error) {
	t.Helper()
	l := ledger.New()
	if _, err := ProcessStream(context.Background(), strings.NewReader(input), l); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	require.NoError(t, WriteAccounts(&buf, l.Snapshot()))
	return buf.String(), nil
}

func TestProcessStream_Scenarios(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name: "deposits and withdrawal",
			input: "type, client, tx, amount\n" +
				"deposit, 1, 1, 1.0\n" +
				"deposit, 1, 3, 2.0\n" +
				"withdrawal, 1, 4, 1.5",
			want: "client,available,held,total,locked\n" +
				"1,1.5000,0.0000,1.5000,false\n",
		},
		{
			name: "resolve",
			input: "type, client, tx, amount\n" +
				"deposit, 1, 1, 100.0\n" +
				"dispute, 1, 1,\n" +
				"resolve, 1, 1,",
			want: "client,available,held,total,locked\n" +
				"1,100.0000,0.0000,100.0000,false\n",
		},
		{
			name: "chargeback",
			input: "type, client, tx, amount\n" +
				"deposit, 1, 1, 100.0\n" +
				"dispute, 1, 1,\n" +
				"chargeback, 1, 1,",
			want: "client,available,held,total,locked\n" +
				"1,0.0000,0.0000,0.0000,true\n",
		},
		{
			name: "several clients",
			input: "type, client, tx, amount\n" +
				"deposit, 2, 1, 1.0\n" +
				"deposit, 1, 2, 2.0\n" +
				"deposit, 1, 3, 2.0\n" +
				"withdrawal, 1, 4, 1.5\n" +
				"withdrawal, 2, 5, 3.0\n",
			want: "client,available,held,total,locked\n" +
				"1,2.5000,0.0000,2.5000,false\n" +
				"2,1.0000,0.0000,1.0000,false\n",
		},
		{
			name:  "header only",
			input: "type, client, tx, amount\n",
			want:  "client,available,held,total,locked\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := process(t, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProcessStream_MissingAmountIsValidationError(t *testing.T) {
	input := "type, client, tx, amount\n" +
		"deposit, 1, 1, 1.0\n" +
		"deposit, 1, 3,\n" +
		"withdrawal, 1, 4, 1.5"

	out, err := process(t, input)
	require.Error(t, err)
	assert.Empty(t, out)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected *ValidationError, got %T: %v", err, err)
	assert.Equal(t, 3, ve.Line)
	assert.Equal(t, domain.TransactionID(3), ve.Transaction.ID())
	assert.ErrorIs(t, err, domain.ErrInvalidTransaction)
}

func TestProcessStream_ControlWithAmountIsValidationError(t *testing.T) {
	_, err := process(t, "type,client,tx,amount\ndeposit,1,1,5\ndispute,1,1,5\n")

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestProcessStream_MalformedRecordIsDecodeError(t *testing.T) {
	input := "type, client, tx, amount\n" +
		"deposit, 1, 1, 1.0\n" +
		"deposit,\n" +
		"withdrawal, 1, 4, 1.5"

	_, err := process(t, input)

	var de *DecodeError
	require.True(t, errors.As(err, &de), "expected *DecodeError, got %T: %v", err, err)
	assert.Equal(t, 3, de.Line)
}

func TestProcessStream_StopsAtFirstError(t *testing.T) {
	l := ledger.New()
	input := "type,client,tx,amount\ndeposit,1,1,1\ndeposit,1,2,\ndeposit,1,3,1\n"

	applied, err := ProcessStream(context.Background(), strings.NewReader(input), l)

	require.Error(t, err)
	assert.Equal(t, 1, applied)
	_, stored := l.Transaction(3)
	assert.False(t, stored, "records after the failure must not be applied")
}

func TestProcessStream_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ProcessStream(ctx, strings.NewReader("type,client,tx,amount\ndeposit,1,1,1\n"), ledger.New())

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsInputError(err))
}

func TestWriteAccounts_Formatting(t *testing.T) {
	accounts := []domain.AccountState{
		{
			Client:    65535,
			Available: decimal.RequireFromString("-1.23456"),
			Held:      decimal.RequireFromString("2"),
			Total:     decimal.RequireFromString("0.76544"),
			Locked:    true,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAccounts(&buf, accounts))

	assert.Equal(t,
		"client,available,held,total,locked\n65535,-1.2346,2.0000,0.7654,true\n",
		buf.String())
}
