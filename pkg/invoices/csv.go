package invoices

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nerc-project/invoicing/pkg/money"
)

// Column names of the usage-record schema, as they appear in the upstream
// service invoices.
const (
	ColInvoiceMonth     = "Invoice Month"
	ColProjectName      = "Project - Allocation"
	ColProjectID        = "Project - Allocation ID"
	ColPI               = "Manager (PI)"
	ColInvoiceEmail     = "Invoice Email"
	ColInvoiceAddress   = "Invoice Address"
	ColInstitution      = "Institution"
	ColInstitutionCode  = "Institution - Specific Code"
	ColClusterName      = "Cluster Name"
	ColIsCourse         = "Is Course"
	ColSUHours          = "SU Hours (GBhr or SUhr)"
	ColSUType           = "SU Type"
	ColRate             = "Rate"
	ColCost             = "Cost"
	ColIsBillable       = "Is Billable"
	ColMissingPI        = "Missing PI"
	ColSUCharge         = "SU Charge"
	ColLenovoCharge     = "Charge"
	ColCredit           = "Credit"
	ColCreditCode       = "Credit Code"
	ColSubsidy          = "Subsidy"
	ColBalance          = "Balance"
	ColGroupName        = "Prepaid Group Name"
	ColGroupInstitution = "Prepaid Group Institution"
	ColGroupBalance     = "Prepaid Group Balance"
	ColGroupUsed        = "Prepaid Group Used"
	ColGroupManaged     = "Prepaid Group Managed"
)

// requiredColumns must be present in every input invoice; the reader fails
// fast when any is absent.
var requiredColumns = []string{
	ColInvoiceMonth,
	ColProjectName,
	ColProjectID,
	ColPI,
	ColInvoiceEmail,
	ColInstitution,
	ColClusterName,
	ColSUHours,
	ColSUType,
	ColRate,
	ColCost,
}

// ReadRecords decodes usage records from a CSV invoice. Columns beyond the
// required set are optional; absent optional columns leave zero values.
func ReadRecords(r io.Reader) ([]UsageRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read invoice header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("invoice is missing required columns: %s", strings.Join(missing, ", "))
	}

	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []UsageRecord
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read invoice row: %w", err)
		}
		line++

		rec := UsageRecord{
			InvoiceMonth:    Month(field(row, ColInvoiceMonth)),
			ProjectName:     field(row, ColProjectName),
			ProjectID:       field(row, ColProjectID),
			PI:              field(row, ColPI),
			InvoiceEmail:    field(row, ColInvoiceEmail),
			InvoiceAddress:  field(row, ColInvoiceAddress),
			Institution:     field(row, ColInstitution),
			InstitutionCode: field(row, ColInstitutionCode),
			ClusterName:     field(row, ColClusterName),
			SUType:          field(row, ColSUType),
			Rate:            field(row, ColRate),
		}

		if v := field(row, ColIsCourse); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid %s value %q", line, ColIsCourse, v)
			}
			rec.IsCourse = b
		}
		if rec.SUHours, err = parseAmount(field(row, ColSUHours)); err != nil {
			return nil, fmt.Errorf("row %d: invalid %s: %w", line, ColSUHours, err)
		}
		if rec.Cost, err = parseAmount(field(row, ColCost)); err != nil {
			return nil, fmt.Errorf("row %d: invalid %s: %w", line, ColCost, err)
		}

		records = append(records, rec)
	}
	return records, nil
}

func parseAmount(s string) (money.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return money.Zero(), nil
	}
	return money.NewDecimal(strings.TrimSpace(s))
}

// WriteRecords encodes the fully-processed record set, every computed column
// populated, in a stable column order.
func WriteRecords(w io.Writer, records []UsageRecord) error {
	cw := csv.NewWriter(w)
	header := []string{
		ColInvoiceMonth, ColProjectName, ColProjectID, ColPI,
		ColInvoiceEmail, ColInvoiceAddress, ColInstitution, ColInstitutionCode,
		ColClusterName, ColIsCourse, ColSUHours, ColSUType, ColRate, ColCost,
		ColIsBillable, ColMissingPI, ColSUCharge, ColLenovoCharge,
		ColCredit, ColCreditCode, ColSubsidy, ColBalance,
		ColGroupName, ColGroupInstitution, ColGroupManaged, ColGroupBalance, ColGroupUsed,
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write invoice header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.InvoiceMonth.String(), r.ProjectName, r.ProjectID, r.PI,
			r.InvoiceEmail, r.InvoiceAddress, r.Institution, r.InstitutionCode,
			r.ClusterName, strconv.FormatBool(r.IsCourse),
			r.SUHours.String(), r.SUType, r.Rate, r.Cost.String(),
			strconv.FormatBool(r.IsBillable), strconv.FormatBool(r.MissingPI),
			r.SUCharge.String(), r.LenovoCharge.String(),
			r.Credit.String(), r.CreditCode, r.Subsidy.String(), r.Balance.String(),
			r.GroupName, r.GroupInstitution, strconv.FormatBool(r.GroupManaged),
			r.GroupBalance.String(), r.GroupBalanceUsed.String(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write invoice row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
