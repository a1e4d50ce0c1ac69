package oldpi

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/money"
)

// Column names of the historical PI ledger.
const (
	ColPI             = "PI"
	ColFirstMonth     = "First Invoice Month"
	ColInitialCredits = "Initial Credits"
	ColFirstUsed      = "1st Month Used"
	ColSecondUsed     = "2nd Month Used"
)

// Entry records when a PI was first billed and how much of their
// introductory credit each eligible month consumed.
type Entry struct {
	PI              string
	FirstMonth      invoices.Month
	InitialCredits  money.Decimal
	FirstMonthUsed  money.Decimal
	SecondMonthUsed money.Decimal
}

// Ledger is the historical PI list. The credit stage consults it and returns
// an updated copy as a side artifact; persistence belongs to the driver.
type Ledger struct {
	Entries []Entry
}

// Lookup finds the entry for a PI.
func (l *Ledger) Lookup(pi string) (Entry, bool) {
	for _, e := range l.Entries {
		if e.PI == pi {
			return e, true
		}
	}
	return Entry{}, false
}

// Put inserts or replaces the entry for e.PI.
func (l *Ledger) Put(e Entry) {
	for i := range l.Entries {
		if l.Entries[i].PI == e.PI {
			l.Entries[i] = e
			return
		}
	}
	l.Entries = append(l.Entries, e)
}

// Clone returns a deep copy, so the stage can return updated state without
// mutating the input ledger.
func (l *Ledger) Clone() *Ledger {
	entries := make([]Entry, len(l.Entries))
	copy(entries, l.Entries)
	return &Ledger{Entries: entries}
}

// Read decodes the ledger from CSV.
func Read(r io.Reader) (*Ledger, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return &Ledger{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("old PI ledger: failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range []string{ColPI, ColFirstMonth, ColInitialCredits, ColFirstUsed, ColSecondUsed} {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("old PI ledger: missing required column %q", name)
		}
	}

	ledger := &Ledger{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("old PI ledger: failed to read row: %w", err)
		}
		field := func(name string) string {
			i := index[name]
			if i >= len(row) {
				return ""
			}
			return row[i]
		}

		month, err := invoices.ParseMonth(field(ColFirstMonth))
		if err != nil {
			return nil, fmt.Errorf("old PI ledger: %w", err)
		}
		entry := Entry{PI: field(ColPI), FirstMonth: month}
		if entry.InitialCredits, err = parseAmount(field(ColInitialCredits)); err != nil {
			return nil, fmt.Errorf("old PI ledger: %w", err)
		}
		if entry.FirstMonthUsed, err = parseAmount(field(ColFirstUsed)); err != nil {
			return nil, fmt.Errorf("old PI ledger: %w", err)
		}
		if entry.SecondMonthUsed, err = parseAmount(field(ColSecondUsed)); err != nil {
			return nil, fmt.Errorf("old PI ledger: %w", err)
		}
		ledger.Entries = append(ledger.Entries, entry)
	}
	return ledger, nil
}

func parseAmount(s string) (money.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return money.Zero(), nil
	}
	return money.NewDecimal(strings.TrimSpace(s))
}

// Write encodes the ledger as CSV.
func Write(w io.Writer, ledger *Ledger) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColPI, ColFirstMonth, ColInitialCredits, ColFirstUsed, ColSecondUsed}); err != nil {
		return fmt.Errorf("old PI ledger: %w", err)
	}
	for _, e := range ledger.Entries {
		row := []string{
			e.PI, e.FirstMonth.String(), e.InitialCredits.String(),
			e.FirstMonthUsed.String(), e.SecondMonthUsed.String(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("old PI ledger: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
