package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// Decoder reads transactions from CSV input with a "type, client, tx, amount" header.
// Surrounding whitespace in every field is ignored.
type Decoder struct {
	r      *csv.Reader
	header bool
	cols   map[string]int
	line   int
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return &Decoder{r: cr}
}

// Line returns the input line of the last record returned by Decode.
func (d *Decoder) Line() int {
	return d.line
}

// Decode returns the next transaction. It returns io.EOF when the input is
// exhausted and a *DecodeError for malformed records. Decoded transactions
// are not validated.
func (d *Decoder) Decode() (domain.Transaction, error) {
	if !d.header {
		if err := d.readHeader(); err != nil {
			return domain.Transaction{}, err
		}
	}

	record, err := d.r.Read()
	if err == io.EOF {
		return domain.Transaction{}, io.EOF
	}
	if err != nil {
		return domain.Transaction{}, d.wrap(err)
	}
	d.line, _ = d.r.FieldPos(0)

	tx, err := d.parseRecord(record)
	if err != nil {
		return domain.Transaction{}, &DecodeError{Line: d.line, Err: err}
	}
	return tx, nil
}

func (d *Decoder) readHeader() error {
	record, err := d.r.Read()
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return d.wrap(err)
	}
	d.line, _ = d.r.FieldPos(0)

	cols := make(map[string]int, len(record))
	for i, name := range record {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, want := range []string{ColumnType, ColumnClient, ColumnTx, ColumnAmount} {
		if _, ok := cols[want]; !ok {
			return &DecodeError{Line: d.line, Err: fmt.Errorf("header is missing column %q", want)}
		}
	}

	d.cols = cols
	d.header = true
	return nil
}

func (d *Decoder) parseRecord(record []string) (domain.Transaction, error) {
	field := func(name string) string {
		return strings.TrimSpace(record[d.cols[name]])
	}

	typ, err := domain.ParseTransactionType(field(ColumnType))
	if err != nil {
		return domain.Transaction{}, err
	}

	client, err := strconv.ParseUint(field(ColumnClient), 10, 16)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("client: %w", err)
	}

	id, err := strconv.ParseUint(field(ColumnTx), 10, 32)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("tx: %w", err)
	}

	var amount decimal.NullDecimal
	if raw := field(ColumnAmount); raw != "" {
		if strings.ContainsAny(raw, "eE") {
			return domain.Transaction{}, fmt.Errorf("amount: exponent notation not accepted: %q", raw)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("amount: %w", err)
		}
		amount = decimal.NewNullDecimal(v)
	}

	return domain.NewTransaction(typ, domain.ClientID(client), domain.TransactionID(id), amount), nil
}

func (d *Decoder) wrap(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &DecodeError{Line: pe.Line, Err: pe.Err}
	}
	return &DecodeError{Line: d.line, Err: err}
}
