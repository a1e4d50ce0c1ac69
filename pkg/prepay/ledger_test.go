package prepay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerc-project/invoicing/pkg/money"
)

func testLedger() *Ledger {
	return &Ledger{
		Credits: []CreditEntry{
			{Month: "2024-01", Group: "GroupA", Credit: money.MustDecimal("5000")},
			{Month: "2024-03", Group: "GroupA", Credit: money.MustDecimal("1000")},
			{Month: "2024-01", Group: "GroupB", Credit: money.MustDecimal("2000")},
		},
		Debits: []DebitEntry{
			{Month: "2024-01", Group: "GroupA", Debit: money.MustDecimal("3000"), Project: "ProjectX"},
		},
		Memberships: []Membership{
			{Project: "ProjectX", Group: "GroupA"},
			{Project: "ProjectY", Group: "GroupB"},
		},
		Contacts: []Contact{
			{Group: "GroupA", Institution: "Boston University", Email: "billing@bu.edu", Managed: true},
			{Group: "GroupB", Institution: "Harvard University", Email: "", Managed: false},
		},
	}
}

func TestGroupFor(t *testing.T) {
	l := testLedger()

	group, ok := l.GroupFor("ProjectX")
	require.True(t, ok)
	assert.Equal(t, "GroupA", group)

	// Matching is case-insensitive.
	group, ok = l.GroupFor("projectx")
	require.True(t, ok)
	assert.Equal(t, "GroupA", group)

	_, ok = l.GroupFor("ProjectZ")
	assert.False(t, ok)
}

func TestContactFor(t *testing.T) {
	l := testLedger()

	c, ok := l.ContactFor("GroupA")
	require.True(t, ok)
	assert.Equal(t, "Boston University", c.Institution)
	assert.True(t, c.Managed)

	_, ok = l.ContactFor("GroupZ")
	assert.False(t, ok)
}

func TestAvailableAt(t *testing.T) {
	l := testLedger()

	tests := []struct {
		name  string
		group string
		month string
		want  string
	}{
		// January credit counts in January; the January debit does not.
		{name: "debit same month not counted", group: "GroupA", month: "2024-01", want: "5000"},
		{name: "prior debit counted", group: "GroupA", month: "2024-02", want: "2000"},
		{name: "later credit counted", group: "GroupA", month: "2024-03", want: "3000"},
		{name: "credit not yet effective", group: "GroupA", month: "2023-12", want: "0"},
		{name: "other group untouched", group: "GroupB", month: "2024-02", want: "2000"},
		{name: "unknown group", group: "GroupZ", month: "2024-02", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.AvailableAt(tt.group, mustMonth(t, tt.month))
			assert.Zero(t, got.Cmp(money.MustDecimal(tt.want)), "got %s", got)
		})
	}
}

func TestBalanceAsOf(t *testing.T) {
	l := testLedger()
	// January balance after the month's own debit: 5000 - 3000.
	got := l.BalanceAsOf("GroupA", "2024-01")
	assert.Zero(t, got.Cmp(money.MustDecimal("2000")))
}

func TestAddDebit(t *testing.T) {
	l := testLedger()
	l.AddDebit("2024-02", "GroupB", money.MustDecimal("500"), "ProjectY")

	require.Len(t, l.Debits, 2)
	assert.Equal(t, "GroupB", l.Debits[1].Group)
	got := l.AvailableAt("GroupB", "2024-03")
	assert.Zero(t, got.Cmp(money.MustDecimal("1500")))
}

func TestSnapshot(t *testing.T) {
	l := testLedger()

	// Only managed groups appear; GroupB is excluded.
	snapshot := l.Snapshot("2024-02")
	require.Len(t, snapshot, 1)
	assert.Equal(t, "GroupA", snapshot[0].Group)
	// 5000 credited minus 3000 debited through February.
	assert.Zero(t, snapshot[0].Balance.Cmp(money.MustDecimal("2000")))
}
