package exports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/nerc-project/invoicing/pkg/invoices"
)

// Export is one invoice artifact derived from the fully-processed record
// set. Exports only select, group and total records; they never recompute
// billability, credit or balance.
type Export interface {
	// Name is the artifact's base file name, without month or extension.
	Name() string
	WriteCSV(w io.Writer) error
}

// Filename is the conventional "<name> <month>.csv" artifact name.
func Filename(e Export, month invoices.Month) string {
	return fmt.Sprintf("%s %s.csv", e.Name(), month)
}

func writeRows(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Billable is the main consortium invoice: every billable record with a
// resolved PI, all computed columns populated.
type Billable struct {
	FileName string
	Records  []invoices.UsageRecord
}

func NewBillable(name string, ds *invoices.Dataset) *Billable {
	var rows []invoices.UsageRecord
	for _, r := range ds.Records {
		if r.IsBillable && !r.MissingPI {
			rows = append(rows, r)
		}
	}
	return &Billable{FileName: name, Records: rows}
}

func (e *Billable) Name() string { return e.FileName }

func (e *Billable) WriteCSV(w io.Writer) error {
	return invoices.WriteRecords(w, e.Records)
}

// Nonbillable lists every record excluded from billing, for operator review.
type Nonbillable struct {
	FileName string
	Records  []invoices.UsageRecord
}

func NewNonbillable(name string, ds *invoices.Dataset) *Nonbillable {
	var rows []invoices.UsageRecord
	for _, r := range ds.Records {
		if !r.IsBillable {
			rows = append(rows, r)
		}
	}
	return &Nonbillable{FileName: name, Records: rows}
}

func (e *Nonbillable) Name() string { return e.FileName }

func (e *Nonbillable) WriteCSV(w io.Writer) error {
	header := []string{
		invoices.ColInvoiceMonth, invoices.ColProjectName, invoices.ColProjectID,
		invoices.ColPI, invoices.ColClusterName, invoices.ColInvoiceEmail,
		invoices.ColInstitution, invoices.ColSUHours, invoices.ColSUType,
		invoices.ColRate, invoices.ColCost,
	}
	rows := make([][]string, 0, len(e.Records))
	for _, r := range e.Records {
		rows = append(rows, []string{
			r.InvoiceMonth.String(), r.ProjectName, r.ProjectID,
			r.PI, r.ClusterName, r.InvoiceEmail,
			r.Institution, r.SUHours.String(), r.SUType,
			r.Rate, r.Cost.String(),
		})
	}
	return writeRows(w, header, rows)
}

// OcpTest lists usage on the always-nonbillable test clusters.
type OcpTest struct {
	FileName string
	Records  []invoices.UsageRecord
}

func NewOcpTest(name string, ds *invoices.Dataset) *OcpTest {
	var rows []invoices.UsageRecord
	for _, r := range ds.Records {
		for _, cluster := range invoices.NonbillableClusters {
			if strings.EqualFold(r.ClusterName, cluster) {
				rows = append(rows, r)
				break
			}
		}
	}
	return &OcpTest{FileName: name, Records: rows}
}

func (e *OcpTest) Name() string { return e.FileName }

func (e *OcpTest) WriteCSV(w io.Writer) error {
	return invoices.WriteRecords(w, e.Records)
}

// Lenovo reports GPU usage subject to the hardware vendor charge.
type Lenovo struct {
	FileName string
	Records  []invoices.UsageRecord
}

func NewLenovo(name string, ds *invoices.Dataset) *Lenovo {
	var rows []invoices.UsageRecord
	for _, r := range ds.Records {
		if !r.SUCharge.IsZero() {
			rows = append(rows, r)
		}
	}
	return &Lenovo{FileName: name, Records: rows}
}

func (e *Lenovo) Name() string { return e.FileName }

func (e *Lenovo) WriteCSV(w io.Writer) error {
	header := []string{
		invoices.ColInvoiceMonth, invoices.ColProjectName, invoices.ColInstitution,
		invoices.ColSUHours, invoices.ColSUType, invoices.ColSUCharge, invoices.ColLenovoCharge,
	}
	rows := make([][]string, 0, len(e.Records))
	for _, r := range e.Records {
		rows = append(rows, []string{
			r.InvoiceMonth.String(), r.ProjectName, r.Institution,
			r.SUHours.String(), r.SUType, r.SUCharge.String(), r.LenovoCharge.String(),
		})
	}
	return writeRows(w, header, rows)
}
