package processors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/money"
	"github.com/nerc-project/invoicing/pkg/prepay"
)

func prepayLedger() *prepay.Ledger {
	return &prepay.Ledger{
		Credits: []prepay.CreditEntry{
			{Month: "2024-01", Group: "GroupA", Credit: money.MustDecimal("1000")},
		},
		Memberships: []prepay.Membership{
			{Project: "PrepaidProject", Group: "GroupA"},
		},
		Contacts: []prepay.Contact{
			{Group: "GroupA", Institution: "Boston University", Email: "billing@bu.edu", Managed: true},
		},
	}
}

func runPrepay(t *testing.T, stage *Prepay, records []invoices.UsageRecord) *invoices.Dataset {
	t.Helper()
	ds := invoices.NewDataset("2024-03", records)
	ds.MarkApplied(StageBUSubsidy)
	require.NoError(t, stage.Process(context.Background(), ds))
	return ds
}

func TestPrepayDrawDown(t *testing.T) {
	stage := &Prepay{Ledger: prepayLedger()}
	ds := runPrepay(t, stage, []invoices.UsageRecord{
		{ProjectName: "PrepaidProject", IsBillable: true,
			Cost: money.MustDecimal("600"), Balance: money.MustDecimal("600")},
	})

	r := ds.Records[0]
	assert.Equal(t, "GroupA", r.GroupName)
	assert.Equal(t, "Boston University", r.GroupInstitution)
	assert.True(t, r.GroupManaged)
	assert.Equal(t, "billing@bu.edu", r.InvoiceEmail)
	assert.Zero(t, r.GroupBalanceUsed.Cmp(money.MustDecimal("600")))
	assert.True(t, r.Balance.IsZero())
	assert.Zero(t, r.GroupBalance.Cmp(money.MustDecimal("400")))

	require.Len(t, stage.NewDebits, 1)
	assert.Equal(t, invoices.Month("2024-03"), stage.NewDebits[0].Month)
	assert.Zero(t, stage.NewDebits[0].Debit.Cmp(money.MustDecimal("600")))
}

func TestPrepayExcessBilledNormally(t *testing.T) {
	stage := &Prepay{Ledger: prepayLedger()}
	ds := runPrepay(t, stage, []invoices.UsageRecord{
		{ProjectName: "PrepaidProject", IsBillable: true,
			Cost: money.MustDecimal("1500"), Balance: money.MustDecimal("1500")},
	})

	r := ds.Records[0]
	// Balance never drives the group negative.
	assert.Zero(t, r.GroupBalanceUsed.Cmp(money.MustDecimal("1000")))
	assert.Zero(t, r.Balance.Cmp(money.MustDecimal("500")))
	assert.True(t, r.GroupBalance.IsZero())
}

func TestPrepaySharedPool(t *testing.T) {
	ledger := prepayLedger()
	ledger.Memberships = append(ledger.Memberships,
		prepay.Membership{Project: "SecondProject", Group: "GroupA"})

	stage := &Prepay{Ledger: ledger}
	ds := runPrepay(t, stage, []invoices.UsageRecord{
		{ProjectName: "PrepaidProject", IsBillable: true,
			Cost: money.MustDecimal("700"), Balance: money.MustDecimal("700")},
		{ProjectName: "SecondProject", IsBillable: true,
			Cost: money.MustDecimal("700"), Balance: money.MustDecimal("700")},
	})

	// The pool is consumed in record order.
	assert.Zero(t, ds.Records[0].GroupBalanceUsed.Cmp(money.MustDecimal("700")))
	assert.Zero(t, ds.Records[1].GroupBalanceUsed.Cmp(money.MustDecimal("300")))
	assert.Zero(t, ds.Records[1].Balance.Cmp(money.MustDecimal("400")))
	require.Len(t, stage.NewDebits, 2)
}

func TestPrepayPriorDebitsReduceBalance(t *testing.T) {
	ledger := prepayLedger()
	ledger.Debits = []prepay.DebitEntry{
		{Month: "2024-02", Group: "GroupA", Debit: money.MustDecimal("900"), Project: "PrepaidProject"},
	}

	stage := &Prepay{Ledger: ledger}
	ds := runPrepay(t, stage, []invoices.UsageRecord{
		{ProjectName: "PrepaidProject", IsBillable: true,
			Cost: money.MustDecimal("500"), Balance: money.MustDecimal("500")},
	})

	assert.Zero(t, ds.Records[0].GroupBalanceUsed.Cmp(money.MustDecimal("100")))
	assert.Zero(t, ds.Records[0].Balance.Cmp(money.MustDecimal("400")))
}

func TestPrepayNonbillableGetsGroupColumnsOnly(t *testing.T) {
	stage := &Prepay{Ledger: prepayLedger()}
	ds := runPrepay(t, stage, []invoices.UsageRecord{
		{ProjectName: "PrepaidProject", IsBillable: false,
			Cost: money.MustDecimal("500"), Balance: money.Zero()},
	})

	r := ds.Records[0]
	assert.Equal(t, "GroupA", r.GroupName)
	assert.True(t, r.GroupBalanceUsed.IsZero())
	assert.Empty(t, stage.NewDebits)
}

func TestPrepayNonMemberUntouched(t *testing.T) {
	stage := &Prepay{Ledger: prepayLedger()}
	ds := runPrepay(t, stage, []invoices.UsageRecord{
		{ProjectName: "OtherProject", IsBillable: true,
			Cost: money.MustDecimal("500"), Balance: money.MustDecimal("500")},
	})

	r := ds.Records[0]
	assert.Empty(t, r.GroupName)
	assert.Zero(t, r.Balance.Cmp(money.MustDecimal("500")))
	assert.Empty(t, stage.NewDebits)
}

func TestPrepayMatchesByProjectID(t *testing.T) {
	ledger := prepayLedger()
	ledger.Memberships = []prepay.Membership{{Project: "uuid-prepaid", Group: "GroupA"}}

	stage := &Prepay{Ledger: ledger}
	ds := runPrepay(t, stage, []invoices.UsageRecord{
		{ProjectName: "Friendly Name", ProjectID: "uuid-prepaid", IsBillable: true,
			Cost: money.MustDecimal("100"), Balance: money.MustDecimal("100")},
	})

	assert.Equal(t, "GroupA", ds.Records[0].GroupName)
	assert.Zero(t, ds.Records[0].GroupBalanceUsed.Cmp(money.MustDecimal("100")))
}
