package processors

import (
	"context"
	"fmt"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/money"
	"github.com/nerc-project/invoicing/pkg/rates"
)

// lenovoSUTypes maps billable SU types to the GPU model name used in the
// rates document.
var lenovoSUTypes = map[string]string{
	"OpenShift GPUA100SXM4": "GPUA100SXM4",
	"OpenStack GPUA100SXM4": "GPUA100SXM4",
	"OpenStack GPUH100":     "GPUH100",
	"BM GPUH100":            "GPUH100",
}

// LenovoCharges resolves the per-SU-type charge map effective for the
// invoice month.
func LenovoCharges(r *rates.Rates, month invoices.Month) (map[string]money.Decimal, error) {
	charges := make(map[string]money.Decimal, len(lenovoSUTypes))
	for suType, gpu := range lenovoSUTypes {
		charge, err := r.DecimalAt(fmt.Sprintf("Lenovo %s Charge", gpu), month)
		if err != nil {
			return nil, err
		}
		charges[suType] = charge
	}
	return charges, nil
}

// LenovoCharge computes the hardware vendor charge for GPU usage: SU hours
// times the per-SU-type charge. SU types without a charge rate cost zero.
type LenovoCharge struct {
	Charges map[string]money.Decimal
}

func (s *LenovoCharge) Name() string       { return StageLenovoCharge }
func (s *LenovoCharge) Requires() []string { return nil }

func (s *LenovoCharge) Process(ctx context.Context, ds *invoices.Dataset) error {
	for i := range ds.Records {
		r := &ds.Records[i]
		r.SUCharge = s.Charges[r.SUType]
		r.LenovoCharge = r.SUHours.Mul(r.SUCharge)
	}
	return nil
}
