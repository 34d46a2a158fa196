package pipeline

// Column names of the transaction input.
const (
	ColumnType   = "type"
	ColumnClient = "client"
	ColumnTx     = "tx"
	ColumnAmount = "amount"
)

// Column names of the account report, in output order.
var reportHeader = []string{"client", "available", "held", "total", "locked"}

const (
	// AmountScale is the number of fractional digits written for balances.
	AmountScale = 4

	// ReportContentType is the MIME type used when uploading reports.
	ReportContentType = "text/csv"
)
