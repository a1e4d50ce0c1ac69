package oldpi

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/money"
)

func TestRead(t *testing.T) {
	input := "PI,First Invoice Month,Initial Credits,1st Month Used,2nd Month Used\n" +
		"alice@bu.edu,2024-01,1000,600,\n" +
		"bob@harvard.edu,2023-11,1000,1000,0\n"

	ledger, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, ledger.Entries, 2)

	alice, ok := ledger.Lookup("alice@bu.edu")
	require.True(t, ok)
	assert.Equal(t, invoices.Month("2024-01"), alice.FirstMonth)
	assert.Zero(t, alice.InitialCredits.Cmp(money.MustDecimal("1000")))
	assert.Zero(t, alice.FirstMonthUsed.Cmp(money.MustDecimal("600")))
	// Empty amount column parses as zero.
	assert.True(t, alice.SecondMonthUsed.IsZero())
}

func TestReadMissingColumn(t *testing.T) {
	input := "PI,First Invoice Month\nalice@bu.edu,2024-01\n"
	_, err := Read(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Initial Credits")
}

func TestReadEmpty(t *testing.T) {
	ledger, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, ledger.Entries)
}

func TestWriteRoundTrip(t *testing.T) {
	ledger := &Ledger{Entries: []Entry{
		{
			PI:             "alice@bu.edu",
			FirstMonth:     "2024-01",
			InitialCredits: money.MustDecimal("1000"),
			FirstMonthUsed: money.MustDecimal("600"),
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ledger))

	got, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, ledger.Entries[0].PI, got.Entries[0].PI)
	assert.Zero(t, got.Entries[0].FirstMonthUsed.Cmp(money.MustDecimal("600")))
}

func TestPut(t *testing.T) {
	ledger := &Ledger{}
	ledger.Put(Entry{PI: "alice@bu.edu", FirstMonth: "2024-01"})
	ledger.Put(Entry{PI: "bob@harvard.edu", FirstMonth: "2024-02"})
	require.Len(t, ledger.Entries, 2)

	// Put replaces in place.
	ledger.Put(Entry{PI: "alice@bu.edu", FirstMonth: "2024-01", FirstMonthUsed: money.MustDecimal("100")})
	require.Len(t, ledger.Entries, 2)
	alice, _ := ledger.Lookup("alice@bu.edu")
	assert.Zero(t, alice.FirstMonthUsed.Cmp(money.MustDecimal("100")))
}

func TestCloneIsIndependent(t *testing.T) {
	original := &Ledger{Entries: []Entry{{PI: "alice@bu.edu", FirstMonth: "2024-01"}}}
	clone := original.Clone()
	clone.Put(Entry{PI: "bob@harvard.edu", FirstMonth: "2024-02"})

	assert.Len(t, original.Entries, 1)
	assert.Len(t, clone.Entries, 2)
}
