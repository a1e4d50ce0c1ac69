package processors

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerc-project/invoicing/pkg/institutes"
	"github.com/nerc-project/invoicing/pkg/invoices"
)

func testDirectory(t *testing.T) *institutes.List {
	t.Helper()
	const list = `
- display_name: Boston University
  domains: [bu.edu]
  mghpcc_partnership_start_date: "2021-06"
- display_name: Harvard University
  domains: [harvard.edu]
`
	l, err := institutes.Load(strings.NewReader(list))
	require.NoError(t, err)
	return l
}

func TestAddInstitution(t *testing.T) {
	stage := &AddInstitution{Directory: testDirectory(t), Log: testLog()}
	ds := invoices.NewDataset("2024-03", []invoices.UsageRecord{
		{PI: "alice@bu.edu"},
		{PI: "bob@cs.harvard.edu"},
		{PI: "carol@mit.edu"},
		{PI: ""},
	})
	ds.MarkApplied(StagePIAlias)
	require.NoError(t, stage.Process(context.Background(), ds))

	assert.Equal(t, "Boston University", ds.Records[0].Institution)
	assert.Equal(t, "Harvard University", ds.Records[1].Institution)
	assert.Empty(t, ds.Records[2].Institution)
	assert.Empty(t, ds.Records[3].Institution)
}
