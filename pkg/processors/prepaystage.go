package processors

import (
	"context"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/money"
	"github.com/nerc-project/invoicing/pkg/prepay"
)

// Prepay draws the month's billable usage of prepay-group projects down from
// each group's running balance. Usage beyond the balance stays on the record
// as ordinary billable balance; a group is never driven negative. The debit
// entries the run produces are exposed via NewDebits for the driver to fold
// into the persisted ledger.
type Prepay struct {
	Ledger *prepay.Ledger

	// NewDebits is populated by Process.
	NewDebits []prepay.DebitEntry
}

func (s *Prepay) Name() string       { return StagePrepay }
func (s *Prepay) Requires() []string { return []string{StageBUSubsidy} }

func (s *Prepay) Process(ctx context.Context, ds *invoices.Dataset) error {
	available := make(map[string]money.Decimal)
	type debitKey struct{ group, project string }
	debits := make(map[debitKey]money.Decimal)
	var debitOrder []debitKey

	for i := range ds.Records {
		r := &ds.Records[i]
		group, ok := s.Ledger.GroupFor(r.ProjectName)
		if !ok {
			group, ok = s.Ledger.GroupFor(r.ProjectID)
		}
		if !ok {
			continue
		}

		r.GroupName = group
		if contact, found := s.Ledger.ContactFor(group); found {
			r.GroupInstitution = contact.Institution
			r.GroupManaged = contact.Managed
			if contact.Email != "" {
				r.InvoiceEmail = contact.Email
			}
		}

		if !r.IsBillable {
			continue
		}

		balance, seen := available[group]
		if !seen {
			balance = s.Ledger.AvailableAt(group, ds.Month)
		}
		used := money.Min(r.Balance, balance)
		if used.IsNegative() {
			used = money.Zero()
		}
		r.GroupBalanceUsed = used
		r.Balance = r.Balance.Sub(used)
		available[group] = balance.Sub(used)

		if !used.IsZero() {
			key := debitKey{group: group, project: r.ProjectName}
			if _, ok := debits[key]; !ok {
				debitOrder = append(debitOrder, key)
			}
			debits[key] = debits[key].Add(used)
		}
	}

	for _, key := range debitOrder {
		s.NewDebits = append(s.NewDebits, prepay.DebitEntry{
			Month:   ds.Month,
			Group:   key.group,
			Debit:   debits[key],
			Project: key.project,
		})
	}

	// Snapshot each group's remaining balance onto its records.
	for i := range ds.Records {
		r := &ds.Records[i]
		if r.GroupName == "" {
			continue
		}
		balance, ok := available[r.GroupName]
		if !ok {
			balance = s.Ledger.AvailableAt(r.GroupName, ds.Month)
		}
		r.GroupBalance = balance
	}
	return nil
}
