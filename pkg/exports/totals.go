package exports

import (
	"io"
	"sort"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/money"
)

// Totals are the per-entity sums the assembly boundary computes. Duplicate
// (project, month, cluster) rows are summed, never deduplicated.
type Totals struct {
	Cost    money.Decimal
	Credit  money.Decimal
	Subsidy money.Decimal
	Balance money.Decimal
}

func sumTotals(records []invoices.UsageRecord) Totals {
	var t Totals
	for _, r := range records {
		t.Cost = t.Cost.Add(r.Cost)
		t.Credit = t.Credit.Add(r.Credit)
		t.Subsidy = t.Subsidy.Add(r.Subsidy)
		t.Balance = t.Balance.Add(r.Balance)
	}
	return t
}

// groupBy buckets records by key, preserving first-seen key order.
func groupBy(records []invoices.UsageRecord, key func(invoices.UsageRecord) string) ([]string, map[string][]invoices.UsageRecord) {
	groups := make(map[string][]invoices.UsageRecord)
	var order []string
	for _, r := range records {
		k := key(r)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}
	return order, groups
}

// NERCTotal is the consortium-wide invoice: billable usage of institutions
// flagged for inclusion, excluding rows billed through a contact-managed
// prepay group, with per-institution totals.
type NERCTotal struct {
	FileName string
	Records  []invoices.UsageRecord
}

func NewNERCTotal(name string, ds *invoices.Dataset, includedInstitutions []string) *NERCTotal {
	included := make(map[string]bool, len(includedInstitutions))
	for _, inst := range includedInstitutions {
		included[inst] = true
	}
	var rows []invoices.UsageRecord
	for _, r := range ds.Records {
		if r.IsBillable && !r.MissingPI && included[r.Institution] && !r.GroupManaged {
			rows = append(rows, r)
		}
	}
	return &NERCTotal{FileName: name, Records: rows}
}

func (e *NERCTotal) Name() string { return e.FileName }

// InstitutionTotals returns each included institution's summed totals,
// sorted by institution name.
func (e *NERCTotal) InstitutionTotals() map[string]Totals {
	_, groups := groupBy(e.Records, func(r invoices.UsageRecord) string { return r.Institution })
	totals := make(map[string]Totals, len(groups))
	for inst, records := range groups {
		totals[inst] = sumTotals(records)
	}
	return totals
}

func (e *NERCTotal) WriteCSV(w io.Writer) error {
	header := []string{
		invoices.ColInvoiceMonth, invoices.ColInstitution,
		invoices.ColCost, invoices.ColCredit, invoices.ColSubsidy, invoices.ColBalance,
	}
	totals := e.InstitutionTotals()
	institutions := make([]string, 0, len(totals))
	for inst := range totals {
		institutions = append(institutions, inst)
	}
	sort.Strings(institutions)

	var rows [][]string
	var month invoices.Month
	if len(e.Records) > 0 {
		month = e.Records[0].InvoiceMonth
	}
	for _, inst := range institutions {
		t := totals[inst]
		rows = append(rows, []string{
			month.String(), inst,
			t.Cost.String(), t.Credit.String(), t.Subsidy.String(), t.Balance.String(),
		})
	}
	return writeRows(w, header, rows)
}

// BUInternal summarizes the subsidized institution's billable usage per PI.
type BUInternal struct {
	FileName string
	Records  []invoices.UsageRecord
}

func NewBUInternal(name string, ds *invoices.Dataset, institution string) *BUInternal {
	var rows []invoices.UsageRecord
	for _, r := range ds.Records {
		if r.IsBillable && !r.MissingPI && r.Institution == institution {
			rows = append(rows, r)
		}
	}
	return &BUInternal{FileName: name, Records: rows}
}

func (e *BUInternal) Name() string { return e.FileName }

func (e *BUInternal) WriteCSV(w io.Writer) error {
	header := []string{
		invoices.ColInvoiceMonth, invoices.ColPI,
		invoices.ColCost, invoices.ColCredit, invoices.ColSubsidy, invoices.ColBalance,
	}
	order, groups := groupBy(e.Records, func(r invoices.UsageRecord) string { return r.PI })
	var rows [][]string
	for _, pi := range order {
		records := groups[pi]
		t := sumTotals(records)
		rows = append(rows, []string{
			records[0].InvoiceMonth.String(), pi,
			t.Cost.String(), t.Credit.String(), t.Subsidy.String(), t.Balance.String(),
		})
	}
	return writeRows(w, header, rows)
}

// PIInvoice is one PI's invoice: their billable records followed by a Total
// row summing cost, credit and balance.
type PIInvoice struct {
	PI          string
	Institution string
	Records     []invoices.UsageRecord
}

// SplitByPI builds per-PI invoices from the processed record set, skipping
// records with no resolved PI.
func SplitByPI(ds *invoices.Dataset) []PIInvoice {
	var billable []invoices.UsageRecord
	for _, r := range ds.Records {
		if r.IsBillable && !r.MissingPI {
			billable = append(billable, r)
		}
	}
	order, groups := groupBy(billable, func(r invoices.UsageRecord) string { return r.PI })
	result := make([]PIInvoice, 0, len(order))
	for _, pi := range order {
		records := groups[pi]
		result = append(result, PIInvoice{
			PI:          pi,
			Institution: records[0].Institution,
			Records:     records,
		})
	}
	return result
}

// FileName is the per-PI artifact name, "<institution>_<pi>_<month>.csv".
func (inv *PIInvoice) FileName(month invoices.Month) string {
	return inv.Institution + "_" + inv.PI + "_" + month.String() + ".csv"
}

func (inv *PIInvoice) WriteCSV(w io.Writer) error {
	header := []string{
		invoices.ColInvoiceMonth, invoices.ColProjectName, invoices.ColProjectID,
		invoices.ColPI, invoices.ColInvoiceEmail, invoices.ColInstitution,
		invoices.ColSUHours, invoices.ColSUType, invoices.ColRate,
		invoices.ColGroupName, invoices.ColGroupBalance,
		invoices.ColCost, invoices.ColGroupUsed,
		invoices.ColCredit, invoices.ColCreditCode, invoices.ColBalance,
	}
	rows := make([][]string, 0, len(inv.Records)+1)
	for _, r := range inv.Records {
		rows = append(rows, []string{
			r.InvoiceMonth.String(), r.ProjectName, r.ProjectID,
			r.PI, r.InvoiceEmail, r.Institution,
			r.SUHours.String(), r.SUType, r.Rate,
			r.GroupName, r.GroupBalance.String(),
			r.Cost.String(), r.GroupBalanceUsed.String(),
			r.Credit.String(), r.CreditCode, r.Balance.String(),
		})
	}
	t := sumTotals(inv.Records)
	rows = append(rows, []string{
		"Total", "", "", "", "", "", "", "", "", "", "",
		t.Cost.String(), "", t.Credit.String(), "", t.Balance.String(),
	})
	return writeRows(w, header, rows)
}
