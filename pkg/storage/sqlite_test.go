package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerc-project/invoicing/pkg/money"
	"github.com/nerc-project/invoicing/pkg/oldpi"
	"github.com/nerc-project/invoicing/pkg/prepay"
)

func TestSQLiteOldPIsRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "invoicing.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	ledger, err := store.FetchOldPIs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ledger.Entries)

	ledger.Put(oldpi.Entry{
		PI:              "alice@bu.edu",
		FirstMonth:      "2024-01",
		InitialCredits:  money.MustDecimal("1000"),
		FirstMonthUsed:  money.MustDecimal("600"),
		SecondMonthUsed: money.MustDecimal("400"),
	})
	require.NoError(t, store.SaveOldPIs(ctx, ledger))

	got, err := store.FetchOldPIs(ctx)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	entry := got.Entries[0]
	assert.Zero(t, entry.SecondMonthUsed.Cmp(money.MustDecimal("400")))
}

func TestSQLiteSaveReplacesWholeLedger(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "invoicing.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	first := &oldpi.Ledger{}
	first.Put(oldpi.Entry{PI: "alice@bu.edu", FirstMonth: "2024-01"})
	first.Put(oldpi.Entry{PI: "bob@harvard.edu", FirstMonth: "2024-01"})
	require.NoError(t, store.SaveOldPIs(ctx, first))

	second := &oldpi.Ledger{}
	second.Put(oldpi.Entry{PI: "alice@bu.edu", FirstMonth: "2024-01"})
	require.NoError(t, store.SaveOldPIs(ctx, second))

	got, err := store.FetchOldPIs(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Entries, 1)
}

func TestSQLitePrepayDebitsRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "invoicing.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	want := []prepay.DebitEntry{
		{Month: "2024-02", Group: "GroupA", Debit: money.MustDecimal("300"), Project: "ProjectX"},
		{Month: "2024-03", Group: "GroupA", Debit: money.MustDecimal("600"), Project: "ProjectX"},
	}
	require.NoError(t, store.SavePrepayDebits(ctx, want))

	got, err := store.FetchPrepayDebits(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Zero(t, got[0].Debit.Cmp(money.MustDecimal("300")))
	assert.Zero(t, got[1].Debit.Cmp(money.MustDecimal("600")))
}

func TestSQLiteFetchAliases(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "invoicing.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	aliases, err := store.FetchAliases(ctx)
	require.NoError(t, err)
	assert.Empty(t, aliases)

	for _, row := range [][2]string{
		{"alice.smith@bu.edu", "alice@bu.edu"},
		{"asmith@bu.edu", "alice@bu.edu"},
		{"rsmith@harvard.edu", "bob@harvard.edu"},
	} {
		_, err := store.db.ExecContext(ctx,
			`INSERT INTO pi_aliases (alias, pi) VALUES (?, ?)`, row[0], row[1])
		require.NoError(t, err)
	}

	aliases, err = store.FetchAliases(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"alice@bu.edu":    {"alice.smith@bu.edu", "asmith@bu.edu"},
		"bob@harvard.edu": {"rsmith@harvard.edu"},
	}, aliases)
}

func TestSQLiteFetchQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT pi").WillReturnError(assert.AnError)

	store := NewSQLiteStoreFromDB(db)
	_, err = store.FetchOldPIs(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query old PI ledger")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteSaveRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM old_pis").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO old_pis").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	store := NewSQLiteStoreFromDB(db)
	ledger := &oldpi.Ledger{}
	ledger.Put(oldpi.Entry{PI: "alice@bu.edu", FirstMonth: "2024-01"})

	err = store.SaveOldPIs(context.Background(), ledger)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
