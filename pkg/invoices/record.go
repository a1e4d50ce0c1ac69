package invoices

import (
	"github.com/nerc-project/invoicing/pkg/money"
)

// NonbillableClusters are always excluded from billing, regardless of PI or
// project. Matched case-insensitively.
var NonbillableClusters = []string{"ocp-test"}

// UsageRecord is one project-allocation/month row of the shared record set.
//
// ProjectName carries either a human-readable project name or the
// externally-assigned project ID; upstream invoices populate both ProjectName
// and ProjectID with the ID, and enrichment replaces ProjectName with the real
// name only for projects known to the allocation source. Consumers comparing
// against ProjectName must tolerate both representations.
type UsageRecord struct {
	InvoiceMonth    Month
	ProjectName     string
	ProjectID       string
	PI              string
	InvoiceEmail    string
	InvoiceAddress  string
	Institution     string
	InstitutionCode string
	ClusterName     string
	IsCourse        bool
	SUHours         money.Decimal
	SUType          string
	Rate            string
	Cost            money.Decimal

	// Computed by pipeline stages.
	IsBillable       bool
	MissingPI        bool
	SUCharge         money.Decimal
	LenovoCharge     money.Decimal
	Credit           money.Decimal
	CreditCode       string
	Subsidy          money.Decimal
	Balance          money.Decimal
	GroupName        string
	GroupInstitution string
	GroupManaged     bool
	GroupBalance     money.Decimal
	GroupBalanceUsed money.Decimal
}

// RecomputeBalance derives Balance from Cost, Credit and Subsidy. It is the
// only way Balance is set before prepay draw-down; credit and subsidy are
// themselves capped at remaining cost, so Balance never goes negative here.
func (r *UsageRecord) RecomputeBalance() {
	r.Balance = r.Cost.Sub(r.Credit).Sub(r.Subsidy)
}
