package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/postgres"
)

// PostgresLoader reads a whole table as the snapshot, one row mapping per
// record, and transposes it into columns.
type PostgresLoader struct {
	db     *postgres.Client
	query  string
	table  string
	logger *slog.Logger
}

// NewPostgresLoader reads from table, which may be schema-qualified.
func NewPostgresLoader(db *postgres.Client, table string) (*PostgresLoader, error) {
	ident, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	return &PostgresLoader{
		db:     db,
		query:  "SELECT * FROM " + ident,
		table:  table,
		logger: logger.WithComponent("postgres-loader").With("table", table),
	}, nil
}

func (l *PostgresLoader) Load(ctx context.Context) (*dataset.Snapshot, error) {
	start := time.Now()
	var records []map[string]any
	err := l.db.ReadOnly(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, l.query)
		if err != nil {
			return fmt.Errorf("querying %s: %w", l.table, err)
		}
		defer rows.Close()
		records, err = scanRecords(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	snap := dataset.FromRows(records)
	l.logger.Info("snapshot read",
		"rows", snap.Len(),
		"snapshot_id", snap.ID(),
		"duration", time.Since(start),
	)
	return snap, nil
}

func scanRecords(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	var records []map[string]any
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		rec := make(map[string]any, len(cols))
		for i, name := range cols {
			rec[name] = cellValue(values[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return records, nil
}

// cellValue turns driver values into the shapes the dataset understands.
// lib/pq returns text and numeric columns as []byte.
func cellValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func quoteTable(table string) (string, error) {
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	for i, p := range parts {
		if strings.TrimSpace(p) == "" {
			return "", fmt.Errorf("invalid table name %q", table)
		}
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), nil
}
