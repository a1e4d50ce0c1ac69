package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/money"
	"github.com/nerc-project/invoicing/pkg/oldpi"
	"github.com/nerc-project/invoicing/pkg/prepay"
)

// SQLiteStore keeps the billing ledgers in a local SQLite database. Amounts
// are stored as decimal strings, never floats.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS old_pis (
	pi TEXT PRIMARY KEY,
	first_month TEXT NOT NULL,
	initial_credits TEXT NOT NULL,
	first_month_used TEXT NOT NULL,
	second_month_used TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS prepay_debits (
	month TEXT NOT NULL,
	group_name TEXT NOT NULL,
	debit TEXT NOT NULL,
	project TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pi_aliases (
	alias TEXT PRIMARY KEY,
	pi TEXT NOT NULL
);
`

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStoreFromDB wraps an existing database handle. Used in tests.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FetchOldPIs(ctx context.Context) (*oldpi.Ledger, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pi, first_month, initial_credits, first_month_used, second_month_used FROM old_pis ORDER BY pi`)
	if err != nil {
		return nil, fmt.Errorf("failed to query old PI ledger: %w", err)
	}
	defer rows.Close()

	ledger := &oldpi.Ledger{}
	for rows.Next() {
		var pi, firstMonth, initial, firstUsed, secondUsed string
		if err := rows.Scan(&pi, &firstMonth, &initial, &firstUsed, &secondUsed); err != nil {
			return nil, fmt.Errorf("failed to scan old PI row: %w", err)
		}
		entry := oldpi.Entry{PI: pi, FirstMonth: invoices.Month(firstMonth)}
		if entry.InitialCredits, err = money.NewDecimal(initial); err != nil {
			return nil, fmt.Errorf("old PI %s: %w", pi, err)
		}
		if entry.FirstMonthUsed, err = money.NewDecimal(firstUsed); err != nil {
			return nil, fmt.Errorf("old PI %s: %w", pi, err)
		}
		if entry.SecondMonthUsed, err = money.NewDecimal(secondUsed); err != nil {
			return nil, fmt.Errorf("old PI %s: %w", pi, err)
		}
		ledger.Entries = append(ledger.Entries, entry)
	}
	return ledger, rows.Err()
}

func (s *SQLiteStore) SaveOldPIs(ctx context.Context, ledger *oldpi.Ledger) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM old_pis`); err != nil {
		return fmt.Errorf("failed to clear old PI ledger: %w", err)
	}
	for _, e := range ledger.Entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO old_pis (pi, first_month, initial_credits, first_month_used, second_month_used)
			 VALUES (?, ?, ?, ?, ?)`,
			e.PI, e.FirstMonth.String(), e.InitialCredits.String(),
			e.FirstMonthUsed.String(), e.SecondMonthUsed.String())
		if err != nil {
			return fmt.Errorf("failed to insert old PI %s: %w", e.PI, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) FetchPrepayDebits(ctx context.Context) ([]prepay.DebitEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT month, group_name, debit, project FROM prepay_debits ORDER BY month, group_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prepay debits: %w", err)
	}
	defer rows.Close()

	var debits []prepay.DebitEntry
	for rows.Next() {
		var month, group, debit, project string
		if err := rows.Scan(&month, &group, &debit, &project); err != nil {
			return nil, fmt.Errorf("failed to scan prepay debit: %w", err)
		}
		amount, err := money.NewDecimal(debit)
		if err != nil {
			return nil, fmt.Errorf("prepay debit for %s: %w", group, err)
		}
		debits = append(debits, prepay.DebitEntry{
			Month:   invoices.Month(month),
			Group:   group,
			Debit:   amount,
			Project: project,
		})
	}
	return debits, rows.Err()
}

func (s *SQLiteStore) FetchAliases(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pi, alias FROM pi_aliases ORDER BY pi, alias`)
	if err != nil {
		return nil, fmt.Errorf("failed to query PI aliases: %w", err)
	}
	defer rows.Close()

	aliases := make(map[string][]string)
	for rows.Next() {
		var pi, alias string
		if err := rows.Scan(&pi, &alias); err != nil {
			return nil, fmt.Errorf("failed to scan PI alias: %w", err)
		}
		aliases[pi] = append(aliases[pi], alias)
	}
	return aliases, rows.Err()
}

func (s *SQLiteStore) SavePrepayDebits(ctx context.Context, debits []prepay.DebitEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM prepay_debits`); err != nil {
		return fmt.Errorf("failed to clear prepay debits: %w", err)
	}
	for _, d := range debits {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO prepay_debits (month, group_name, debit, project) VALUES (?, ?, ?, ?)`,
			d.Month.String(), d.Group, d.Debit.String(), d.Project)
		if err != nil {
			return fmt.Errorf("failed to insert prepay debit for %s: %w", d.Group, err)
		}
	}
	return tx.Commit()
}
