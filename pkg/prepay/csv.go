package prepay

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/money"
)

// Column names of the prepay ledger tables.
const (
	ColMonth       = "Month"
	ColGroupName   = "Group Name"
	ColCredit      = "Credit"
	ColDebit       = "Debit"
	ColBalance     = "Balance"
	ColProject     = "Project"
	ColInstitution = "Group Institution"
	ColEmail       = "Group Contact Email"
	ColManaged     = "Managed"
)

func readTable(r io.Reader, required []string) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}
	var rows []map[string]string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		m := make(map[string]string, len(index))
		for name, i := range index {
			if i < len(row) {
				m[name] = row[i]
			}
		}
		rows = append(rows, m)
	}
	return rows, nil
}

// ReadCredits decodes the prepay credits table.
func ReadCredits(r io.Reader) ([]CreditEntry, error) {
	rows, err := readTable(r, []string{ColMonth, ColGroupName, ColCredit})
	if err != nil {
		return nil, fmt.Errorf("prepay credits: %w", err)
	}
	entries := make([]CreditEntry, 0, len(rows))
	for _, row := range rows {
		month, err := invoices.ParseMonth(row[ColMonth])
		if err != nil {
			return nil, fmt.Errorf("prepay credits: %w", err)
		}
		amount, err := money.NewDecimal(row[ColCredit])
		if err != nil {
			return nil, fmt.Errorf("prepay credits: %w", err)
		}
		entries = append(entries, CreditEntry{Month: month, Group: row[ColGroupName], Credit: amount})
	}
	return entries, nil
}

// ReadDebits decodes the prepay debits table.
func ReadDebits(r io.Reader) ([]DebitEntry, error) {
	rows, err := readTable(r, []string{ColMonth, ColGroupName, ColDebit})
	if err != nil {
		return nil, fmt.Errorf("prepay debits: %w", err)
	}
	entries := make([]DebitEntry, 0, len(rows))
	for _, row := range rows {
		month, err := invoices.ParseMonth(row[ColMonth])
		if err != nil {
			return nil, fmt.Errorf("prepay debits: %w", err)
		}
		amount, err := money.NewDecimal(row[ColDebit])
		if err != nil {
			return nil, fmt.Errorf("prepay debits: %w", err)
		}
		entries = append(entries, DebitEntry{
			Month:   month,
			Group:   row[ColGroupName],
			Debit:   amount,
			Project: row[ColProject],
		})
	}
	return entries, nil
}

// WriteDebits encodes the prepay debits table, including any debits the
// current run produced.
func WriteDebits(w io.Writer, entries []DebitEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColMonth, ColGroupName, ColDebit, ColProject}); err != nil {
		return fmt.Errorf("prepay debits: %w", err)
	}
	for _, e := range entries {
		row := []string{e.Month.String(), e.Group, e.Debit.String(), e.Project}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("prepay debits: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadMemberships decodes the project-to-group membership table.
func ReadMemberships(r io.Reader) ([]Membership, error) {
	rows, err := readTable(r, []string{ColProject, ColGroupName})
	if err != nil {
		return nil, fmt.Errorf("prepay projects: %w", err)
	}
	memberships := make([]Membership, 0, len(rows))
	for _, row := range rows {
		memberships = append(memberships, Membership{Project: row[ColProject], Group: row[ColGroupName]})
	}
	return memberships, nil
}

// ReadContacts decodes the group contact table. The Managed column uses
// Yes/No values in the upstream sheet.
func ReadContacts(r io.Reader) ([]Contact, error) {
	rows, err := readTable(r, []string{ColGroupName, ColInstitution, ColEmail, ColManaged})
	if err != nil {
		return nil, fmt.Errorf("prepay contacts: %w", err)
	}
	contacts := make([]Contact, 0, len(rows))
	for _, row := range rows {
		contacts = append(contacts, Contact{
			Group:       row[ColGroupName],
			Institution: row[ColInstitution],
			Email:       row[ColEmail],
			Managed:     strings.EqualFold(row[ColManaged], "Yes"),
		})
	}
	return contacts, nil
}
