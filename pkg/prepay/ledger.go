package prepay

import (
	"strings"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/money"
)

// CreditEntry is a dated top-up of a group's prepaid balance.
type CreditEntry struct {
	Month  invoices.Month
	Group  string
	Credit money.Decimal
}

// DebitEntry is a dated draw-down of a group's prepaid balance, attributed
// to the project whose usage consumed it.
type DebitEntry struct {
	Month   invoices.Month
	Group   string
	Debit   money.Decimal
	Project string
}

// Membership maps a project to the prepay group that covers its usage.
type Membership struct {
	Project string
	Group   string
}

// Contact holds group-level billing contact information. Managed groups are
// the ones whose balances appear in the exported credits snapshot.
type Contact struct {
	Group       string
	Institution string
	Email       string
	Managed     bool
}

// Ledger is the prepayment state for one run: read once at the start,
// consulted by the prepayment stage, and written back by the driver with any
// debits the run produced.
type Ledger struct {
	Credits     []CreditEntry
	Debits      []DebitEntry
	Memberships []Membership
	Contacts    []Contact
}

// GroupFor returns the prepay group covering the given project, matching the
// project name case-insensitively.
func (l *Ledger) GroupFor(project string) (string, bool) {
	for _, m := range l.Memberships {
		if strings.EqualFold(m.Project, project) {
			return m.Group, true
		}
	}
	return "", false
}

// ContactFor returns the contact entry for a group.
func (l *Ledger) ContactFor(group string) (Contact, bool) {
	for _, c := range l.Contacts {
		if c.Group == group {
			return c, true
		}
	}
	return Contact{}, false
}

// AvailableAt returns the balance a group can spend in the given month: all
// credits dated up to and including the month, minus all debits dated before
// it. Debits for the month itself are produced by the current run.
func (l *Ledger) AvailableAt(group string, month invoices.Month) money.Decimal {
	balance := money.Zero()
	for _, c := range l.Credits {
		if c.Group == group && !c.Month.After(month) {
			balance = balance.Add(c.Credit)
		}
	}
	for _, d := range l.Debits {
		if d.Group == group && d.Month.Before(month) {
			balance = balance.Sub(d.Debit)
		}
	}
	return balance
}

// BalanceAsOf returns the group balance with the month's own debits applied.
func (l *Ledger) BalanceAsOf(group string, month invoices.Month) money.Decimal {
	balance := l.AvailableAt(group, month)
	for _, d := range l.Debits {
		if d.Group == group && d.Month == month {
			balance = balance.Sub(d.Debit)
		}
	}
	return balance
}

// AddDebit appends a debit entry for the month.
func (l *Ledger) AddDebit(month invoices.Month, group string, amount money.Decimal, project string) {
	l.Debits = append(l.Debits, DebitEntry{
		Month:   month,
		Group:   group,
		Debit:   amount,
		Project: project,
	})
}

// BalanceEntry is one group's remaining balance as of a month.
type BalanceEntry struct {
	Month   invoices.Month
	Group   string
	Balance money.Decimal
}

// Snapshot returns each contact-managed group's balance as of the month, in
// contact order. Used purely for external reporting; charges never read it.
func (l *Ledger) Snapshot(month invoices.Month) []BalanceEntry {
	var snapshot []BalanceEntry
	for _, c := range l.Contacts {
		if !c.Managed {
			continue
		}
		snapshot = append(snapshot, BalanceEntry{
			Month:   month,
			Group:   c.Group,
			Balance: l.BalanceAsOf(c.Group, month),
		})
	}
	return snapshot
}
