package institutes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerc-project/invoicing/pkg/invoices"
)

const sampleList = `
- display_name: Boston University
  domains:
    - bu.edu
  mghpcc_partnership_start_date: "2021-06"
  include_in_nerc_total_invoice: true
- display_name: Harvard University
  domains:
    - harvard.edu
  include_in_nerc_total_invoice: true
- display_name: Dana-Farber Cancer Institute
  domains:
    - dfci.harvard.edu
- display_name: Wentworth Institute of Technology
  domains:
    - wit.edu
  courses_nonbillable: true
`

func load(t *testing.T, yaml string) *List {
	t.Helper()
	l, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)
	return l
}

func TestLoadRejectsDuplicateName(t *testing.T) {
	bad := `
- display_name: Boston University
  domains: [bu.edu]
- display_name: Boston University
  domains: [bu2.edu]
`
	_, err := Load(strings.NewReader(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate institute display name")
}

func TestLoadRejectsDuplicateDomain(t *testing.T) {
	bad := `
- display_name: Boston University
  domains: [bu.edu]
- display_name: Boston College
  domains: [bu.edu]
`
	_, err := Load(strings.NewReader(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate domain")
}

func TestLoadRejectsInvalidDomain(t *testing.T) {
	bad := `
- display_name: Nowhere University
  domains: [edu]
`
	_, err := Load(strings.NewReader(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid domain")
}

func TestLoadRejectsUnknownField(t *testing.T) {
	bad := `
- display_name: Boston University
  domains: [bu.edu]
  unexpected_field: true
`
	_, err := Load(strings.NewReader(bad))
	assert.Error(t, err)
}

func TestResolveEmail(t *testing.T) {
	l := load(t, sampleList)

	tests := []struct {
		name  string
		email string
		want  string
	}{
		{name: "exact domain", email: "alice@bu.edu", want: "Boston University"},
		{name: "subdomain", email: "bob@cs.bu.edu", want: "Boston University"},
		{name: "deep subdomain", email: "h@a.b.c.harvard.edu", want: "Harvard University"},
		{name: "sub-unit wins over parent", email: "carol@dfci.harvard.edu", want: "Dana-Farber Cancer Institute"},
		{name: "unknown domain", email: "dave@mit.edu", want: ""},
		{name: "single label", email: "e@edu", want: ""},
		{name: "no at sign", email: "not-an-email", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.ResolveEmail(tt.email))
		})
	}
}

func TestDerivedViews(t *testing.T) {
	l := load(t, sampleList)

	assert.Equal(t, []string{"Wentworth Institute of Technology"}, l.NonbillableCourseList())
	assert.Equal(t, []string{"Boston University", "Harvard University"}, l.IncludedInTotalInvoice())
}

func TestPartnershipStartDate(t *testing.T) {
	l := load(t, sampleList)

	start, ok := l.PartnershipStartDate("Boston University")
	require.True(t, ok)
	assert.Equal(t, invoices.Month("2021-06"), start)

	_, ok = l.PartnershipStartDate("Harvard University")
	assert.False(t, ok)

	_, ok = l.PartnershipStartDate("Unknown University")
	assert.False(t, ok)
}

func TestLoadRejectsInvalidPartnershipDate(t *testing.T) {
	bad := `
- display_name: Boston University
  domains: [bu.edu]
  mghpcc_partnership_start_date: "June 2021"
`
	_, err := Load(strings.NewReader(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "partnership start date")
}
