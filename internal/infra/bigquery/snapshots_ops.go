package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// SnapshotRepository writes and reads run snapshots in a BigQuery table.
// It holds one client for its lifetime.
type SnapshotRepository struct {
	client    *bigquery.Client
	datasetID string
	tableID   string
}

// NewSnapshotRepository creates a repository for projectID.datasetID.tableID.
func NewSnapshotRepository(ctx context.Context, projectID, datasetID, tableID string) (*SnapshotRepository, error) {
	if projectID == "" || datasetID == "" || tableID == "" {
		return nil, fmt.Errorf("NewSnapshotRepository: project, dataset and table are required")
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewSnapshotRepository: creating client: %w", err)
	}
	return &SnapshotRepository{
		client:    client,
		datasetID: datasetID,
		tableID:   tableID,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *SnapshotRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ExportSnapshot streams one row per account into the snapshot table.
func (r *SnapshotRepository) ExportSnapshot(ctx context.Context, runID string, accounts []domain.AccountState) error {
	if len(accounts) == 0 {
		return nil
	}

	rows := SnapshotRows(runID, accounts, time.Now().UTC())
	inserter := r.client.Dataset(r.datasetID).Table(r.tableID).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("ExportSnapshot: inserting %d rows: %w", len(rows), err)
	}
	return nil
}

// ListSnapshot returns the exported rows of a run ordered by client.
func (r *SnapshotRepository) ListSnapshot(ctx context.Context, runID string) ([]*AccountSnapshotRow, error) {
	query := fmt.Sprintf(`
		SELECT
			run_id,
			client_id,
			available,
			held,
			total,
			locked,
			exported_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE run_id = @run_id
		ORDER BY client_id
	`, r.client.Project(), r.datasetID, r.tableID)

	q := r.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListSnapshot: reading query: %w", err)
	}

	var rows []*AccountSnapshotRow
	for {
		var row AccountSnapshotRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListSnapshot: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}
