package exports

import (
	"io"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/money"
	"github.com/nerc-project/invoicing/pkg/prepay"
)

// GroupInvoice is one prepaid group's invoice: the group's billable records,
// one row per prepay credit granted to the group in the invoice month (the
// group is billed the credit amount), and a Total row.
type GroupInvoice struct {
	Group        string
	Institution  string
	ContactEmail string
	Records      []invoices.UsageRecord
	Credits      []prepay.CreditEntry
}

// SplitByGroup builds per-group invoices from the processed record set,
// covering every prepaid group with billable usage this month. The group's
// institution and contact come from its first record.
func SplitByGroup(ds *invoices.Dataset, ledger *prepay.Ledger, month invoices.Month) []GroupInvoice {
	var grouped []invoices.UsageRecord
	for _, r := range ds.Records {
		if r.IsBillable && !r.MissingPI && r.GroupName != "" {
			grouped = append(grouped, r)
		}
	}
	order, groups := groupBy(grouped, func(r invoices.UsageRecord) string { return r.GroupName })
	result := make([]GroupInvoice, 0, len(order))
	for _, group := range order {
		records := groups[group]
		var credits []prepay.CreditEntry
		for _, c := range ledger.Credits {
			if c.Month == month && c.Group == group {
				credits = append(credits, c)
			}
		}
		result = append(result, GroupInvoice{
			Group:        group,
			Institution:  records[0].GroupInstitution,
			ContactEmail: records[0].InvoiceEmail,
			Records:      records,
			Credits:      credits,
		})
	}
	return result
}

// FileName is the per-group artifact name,
// "<group institution>_<contact email>_<month>.csv".
func (inv *GroupInvoice) FileName(month invoices.Month) string {
	return inv.Institution + "_" + inv.ContactEmail + "_" + month.String() + ".csv"
}

func (inv *GroupInvoice) WriteCSV(w io.Writer) error {
	header := []string{
		invoices.ColInvoiceMonth, invoices.ColProjectName, invoices.ColProjectID,
		invoices.ColPI, invoices.ColInvoiceEmail, invoices.ColInstitution,
		invoices.ColSUHours, invoices.ColSUType, invoices.ColRate,
		invoices.ColGroupName, invoices.ColGroupInstitution, invoices.ColGroupBalance,
		invoices.ColCost, invoices.ColGroupUsed,
		invoices.ColCredit, invoices.ColCreditCode, invoices.ColBalance,
	}
	var totalCost, totalUsed, totalCredit, totalBalance money.Decimal
	rows := make([][]string, 0, len(inv.Records)+len(inv.Credits)+1)
	for _, r := range inv.Records {
		rows = append(rows, []string{
			r.InvoiceMonth.String(), r.ProjectName, r.ProjectID,
			r.PI, r.InvoiceEmail, r.Institution,
			r.SUHours.String(), r.SUType, r.Rate,
			r.GroupName, r.GroupInstitution, r.GroupBalance.String(),
			r.Cost.String(), r.GroupBalanceUsed.String(),
			r.Credit.String(), r.CreditCode, r.Balance.String(),
		})
		totalCost = totalCost.Add(r.Cost)
		totalUsed = totalUsed.Add(r.GroupBalanceUsed)
		totalCredit = totalCredit.Add(r.Credit)
		totalBalance = totalBalance.Add(r.Balance)
	}
	for _, c := range inv.Credits {
		rows = append(rows, []string{
			c.Month.String(), "", "",
			"", inv.ContactEmail, "",
			"", "", "",
			inv.Group, inv.Institution, "",
			c.Credit.String(), "",
			"", "", c.Credit.String(),
		})
		totalCost = totalCost.Add(c.Credit)
		totalBalance = totalBalance.Add(c.Credit)
	}
	rows = append(rows, []string{
		"Total", "", "", "", "", "", "", "", "", "", "", "",
		totalCost.String(), totalUsed.String(),
		totalCredit.String(), "", totalBalance.String(),
	})
	return writeRows(w, header, rows)
}
