package processors

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nerc-project/invoicing/pkg/institutes"
	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/money"
	"github.com/nerc-project/invoicing/pkg/oldpi"
)

// NewPICreditCode marks a credit as the new-PI introductory credit in
// exported invoices.
const NewPICreditCode = "0002"

// creditWindowMonths bounds eligibility: a PI receives introductory credit
// only in their first and second billed months.
const creditWindowMonths = 2

// NewPICredit grants each newly onboarded PI a one-time introductory credit,
// consumed against their earliest billable records in record order within the
// eligibility window. The historical PI ledger is consulted read-only; the
// updated copy, including PIs first seen this run, is exposed via UpdatedOldPIs
// for the driver to persist.
type NewPICredit struct {
	OldPIs          *oldpi.Ledger
	InitialCredit   money.Decimal
	LimitToPartners bool
	Directory       *institutes.List
	Log             *logrus.Entry

	// UpdatedOldPIs is populated by Process.
	UpdatedOldPIs *oldpi.Ledger
}

func (s *NewPICredit) Name() string       { return StageNewPICredit }
func (s *NewPICredit) Requires() []string { return []string{StageBillability} }

func (s *NewPICredit) Process(ctx context.Context, ds *invoices.Dataset) error {
	log := s.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	updated := s.OldPIs.Clone()

	// Remaining credit pool per PI for this month.
	remaining := make(map[string]money.Decimal)
	// How much of the pool this month's records consumed, per PI.
	used := make(map[string]money.Decimal)

	for i := range ds.Records {
		r := &ds.Records[i]
		if !r.IsBillable || r.MissingPI {
			r.RecomputeBalance()
			continue
		}

		pool, seen := remaining[r.PI]
		if !seen {
			entry, ok := updated.Lookup(r.PI)
			if !ok {
				initial := money.Zero()
				if s.eligible(r.Institution, ds.Month) {
					initial = s.InitialCredit
				} else if s.LimitToPartners {
					log.WithFields(logrus.Fields{
						"pi":          r.PI,
						"institution": r.Institution,
					}).Info("new PI not eligible for credit, not a partner institution")
				}
				entry = oldpi.Entry{
					PI:             r.PI,
					FirstMonth:     ds.Month,
					InitialCredits: initial,
				}
				updated.Put(entry)
			}
			pool = remainingCredit(entry, ds.Month)
			remaining[r.PI] = pool
		}

		if pool.IsZero() || pool.IsNegative() {
			r.RecomputeBalance()
			continue
		}

		credit := money.Min(pool, r.Cost)
		r.Credit = credit
		r.CreditCode = NewPICreditCode
		remaining[r.PI] = pool.Sub(credit)
		used[r.PI] = used[r.PI].Add(credit)
		r.RecomputeBalance()
	}

	// Fold this month's consumption into the ledger copy.
	for pi, amount := range used {
		entry, _ := updated.Lookup(pi)
		switch invoices.MonthsBetween(ds.Month, entry.FirstMonth) {
		case 0:
			entry.FirstMonthUsed = entry.FirstMonthUsed.Add(amount)
		case 1:
			entry.SecondMonthUsed = entry.SecondMonthUsed.Add(amount)
		}
		updated.Put(entry)
	}

	s.UpdatedOldPIs = updated
	return nil
}

// eligible reports whether a PI at the given institution may receive the
// credit for the invoice month.
func (s *NewPICredit) eligible(institution string, month invoices.Month) bool {
	if !s.LimitToPartners {
		return true
	}
	start, ok := s.Directory.PartnershipStartDate(institution)
	if !ok {
		return false
	}
	return !month.Before(start)
}

// remainingCredit is the unconsumed part of a PI's introductory credit for
// the invoice month, zero outside the eligibility window.
func remainingCredit(entry oldpi.Entry, month invoices.Month) money.Decimal {
	diff := invoices.MonthsBetween(month, entry.FirstMonth)
	if diff < 0 || diff >= creditWindowMonths {
		return money.Zero()
	}
	remaining := entry.InitialCredits.Sub(entry.FirstMonthUsed)
	if diff == 1 {
		remaining = remaining.Sub(entry.SecondMonthUsed)
	}
	if remaining.IsNegative() {
		return money.Zero()
	}
	return remaining
}
