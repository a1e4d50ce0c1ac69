package processors

import (
	"context"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/money"
)

// DefaultSubsidizedInstitution receives the institutional subsidy.
const DefaultSubsidizedInstitution = "Boston University"

// BUSubsidy applies the institutional subsidy to every billable record of
// the subsidized institution. The subsidy is applied strictly after credit
// and is capped at the cost remaining once credit is taken off, so the
// billed balance can reach zero but never goes negative.
type BUSubsidy struct {
	Institution string
	Amount      money.Decimal
}

func (s *BUSubsidy) Name() string       { return StageBUSubsidy }
func (s *BUSubsidy) Requires() []string { return []string{StageNewPICredit} }

func (s *BUSubsidy) Process(ctx context.Context, ds *invoices.Dataset) error {
	institution := s.Institution
	if institution == "" {
		institution = DefaultSubsidizedInstitution
	}
	for i := range ds.Records {
		r := &ds.Records[i]
		if !r.IsBillable || r.Institution != institution {
			continue
		}
		afterCredit := r.Cost.Sub(r.Credit)
		r.Subsidy = money.Min(s.Amount, afterCredit)
		r.RecomputeBalance()
	}
	return nil
}
