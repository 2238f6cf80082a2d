// Package postgres publishes the family-structure summary to PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"enigh/domain/family"
	"enigh/internal/dataset"
	"enigh/internal/errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const summaryTable = "estructura_familiar"

var summaryColumns = []string{
	"anio", "folioviv", "foliohog", "pareja", "hijos", "otros_adultos",
	"sexo_jefe", "edad_jefe", "estructura_familiar",
}

const schema = `
CREATE TABLE IF NOT EXISTS estructura_familiar (
	anio                INTEGER  NOT NULL,
	folioviv            TEXT     NOT NULL,
	foliohog            TEXT     NOT NULL,
	pareja              SMALLINT NOT NULL,
	hijos               SMALLINT NOT NULL,
	otros_adultos       SMALLINT NOT NULL,
	sexo_jefe           TEXT,
	edad_jefe           TEXT,
	estructura_familiar TEXT     NOT NULL
);
CREATE INDEX IF NOT EXISTS estructura_familiar_anio_idx ON estructura_familiar (anio);
`

// Open connects to PostgreSQL with the lib/pq driver.
func Open(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	return db, nil
}

// SummaryRepository stores one family-structure summary per survey year.
type SummaryRepository struct {
	db *sqlx.DB
}

// NewSummaryRepository creates a repository over an open connection.
func NewSummaryRepository(db *sqlx.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

func (r *SummaryRepository) Name() string { return "postgres" }

// EnsureSchema creates the summary table when it does not exist.
func (r *SummaryRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return errors.DatabaseError("failed to create schema", err)
	}
	return nil
}

// Export replaces the rows of the year with the summary and reads the stored
// label counts back to check them against dist.
func (r *SummaryRepository) Export(ctx context.Context, year int, summary *dataset.Table, dist family.Distribution) error {
	if err := r.EnsureSchema(ctx); err != nil {
		return err
	}
	if _, err := r.ReplaceYear(ctx, year, summary); err != nil {
		return err
	}
	counts, err := r.CountByStructure(ctx, year)
	if err != nil {
		return err
	}
	return checkCounts(counts, dist)
}

// checkCounts compares stored label counts with the distribution written.
func checkCounts(counts []LabelCount, dist family.Distribution) error {
	stored := make(map[family.Structure]int, len(counts))
	for _, c := range counts {
		stored[family.Structure(c.Structure)] = c.Households
	}
	for _, c := range dist.Counts {
		if got := stored[c.Structure]; got != c.Households {
			return errors.DatabaseError(fmt.Sprintf("stored %d households for %s, expected %d", got, c.Structure, c.Households), nil)
		}
		delete(stored, c.Structure)
	}
	for label, n := range stored {
		if n > 0 {
			return errors.DatabaseError(fmt.Sprintf("stored %d households for unexpected label %s", n, label), nil)
		}
	}
	return nil
}

// ReplaceYear deletes the year's rows and bulk-loads the summary in one
// transaction. It returns the number of rows loaded.
func (r *SummaryRepository) ReplaceYear(ctx context.Context, year int, summary *dataset.Table) (int, error) {
	src, err := summary.Select(summaryColumns[1:]...)
	if err != nil {
		return 0, errors.InvalidInput(err.Error())
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM estructura_familiar WHERE anio = $1`, year); err != nil {
		return 0, errors.DatabaseError("failed to clear year", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(summaryTable, summaryColumns...))
	if err != nil {
		return 0, errors.DatabaseError("failed to prepare copy", err)
	}
	for n, row := range src.Rows {
		args := make([]interface{}, 0, len(summaryColumns))
		args = append(args, year)
		for _, cell := range row {
			if cell == "" {
				args = append(args, nil)
			} else {
				args = append(args, cell)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			return 0, errors.DatabaseError(fmt.Sprintf("failed to copy row %d", n+1), err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, errors.DatabaseError("failed to flush copy", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, errors.DatabaseError("failed to close copy", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.DatabaseError("failed to commit", err)
	}
	return len(src.Rows), nil
}

// LabelCount is one row of CountByStructure.
type LabelCount struct {
	Structure  string `db:"estructura_familiar"`
	Households int    `db:"hogares"`
}

// CountByStructure returns the stored label counts of a year ordered by label.
func (r *SummaryRepository) CountByStructure(ctx context.Context, year int) ([]LabelCount, error) {
	var counts []LabelCount
	err := r.db.SelectContext(ctx, &counts, `
		SELECT estructura_familiar, COUNT(*) AS hogares
		FROM estructura_familiar
		WHERE anio = $1
		GROUP BY estructura_familiar
		ORDER BY estructura_familiar
	`, year)
	if err != nil {
		return nil, errors.DatabaseError("failed to count structures", err)
	}
	return counts, nil
}
