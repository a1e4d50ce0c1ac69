package exports

import (
	"io"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/prepay"
)

// PrepaySnapshot reports each contact-managed prepay group's remaining
// balance as of the month. It is a reporting artifact only; charges never
// read it.
type PrepaySnapshot struct {
	Month   invoices.Month
	Entries []prepay.BalanceEntry
}

func NewPrepaySnapshot(ledger *prepay.Ledger, month invoices.Month) *PrepaySnapshot {
	return &PrepaySnapshot{Month: month, Entries: ledger.Snapshot(month)}
}

func (e *PrepaySnapshot) Name() string {
	return "NERC_Prepaid_Group-Credits"
}

func (e *PrepaySnapshot) WriteCSV(w io.Writer) error {
	header := []string{prepay.ColMonth, prepay.ColGroupName, prepay.ColBalance}
	rows := make([][]string, 0, len(e.Entries))
	for _, entry := range e.Entries {
		rows = append(rows, []string{entry.Month.String(), entry.Group, entry.Balance.String()})
	}
	return writeRows(w, header, rows)
}
