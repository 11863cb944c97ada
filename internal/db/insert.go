package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// InsertConfig defines the parameters for a bulk insert.
type InsertConfig struct {
	Table   string   // target table, optionally schema-qualified
	Columns []string // columns being inserted, in row order

	// ConflictKeys names the unique constraint columns. With UpdateCols
	// empty the insert skips conflicting rows; an empty ConflictKeys skips
	// rows that violate any unique index.
	ConflictKeys []string

	// UpdateCols turns the insert into an upsert on ConflictKeys.
	UpdateCols []string
}

// BulkInsert loads rows through a temp table and COPY, then moves them into
// the target with INSERT ... ON CONFLICT in one transaction. It returns the
// number of rows actually inserted or updated in the target.
func BulkInsert(ctx context.Context, pool Pool, cfg InsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: insert: no columns specified")
	}
	if len(cfg.UpdateCols) > 0 && len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: insert: update requires conflict keys")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: insert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tempTable := "_tmp_insert_" + strings.ReplaceAll(cfg.Table, ".", "_")
	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		identifier(cfg.Table).Sanitize(),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: insert: create temp table for %s", cfg.Table)
	}

	if _, err := CopyFrom(ctx, tx, tempTable, cfg.Columns, rows); err != nil {
		return 0, eris.Wrapf(err, "db: insert: stage rows for %s", cfg.Table)
	}

	tag, err := tx.Exec(ctx, insertSQL(cfg, tempTable))
	if err != nil {
		return 0, eris.Wrapf(err, "db: insert: INSERT ON CONFLICT for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: insert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func insertSQL(cfg InsertConfig, tempTable string) string {
	cols := quoteAndJoin(cfg.Columns)
	stmt := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT",
		identifier(cfg.Table).Sanitize(), cols, cols, pgx.Identifier{tempTable}.Sanitize())

	if len(cfg.ConflictKeys) > 0 {
		stmt += fmt.Sprintf(" (%s)", quoteAndJoin(cfg.ConflictKeys))
	}
	if len(cfg.UpdateCols) == 0 {
		return stmt + " DO NOTHING"
	}

	set := make([]string, len(cfg.UpdateCols))
	for i, col := range cfg.UpdateCols {
		q := pgx.Identifier{col}.Sanitize()
		set[i] = q + " = EXCLUDED." + q
	}
	return stmt + " DO UPDATE SET " + strings.Join(set, ", ")
}

// identifier splits a possibly schema-qualified table name.
func identifier(table string) pgx.Identifier {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
