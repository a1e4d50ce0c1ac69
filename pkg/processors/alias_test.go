package processors

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerc-project/invoicing/pkg/invoices"
)

func TestPIAlias(t *testing.T) {
	stage := &PIAlias{Aliases: map[string][]string{
		"alice@bu.edu": {"alice.smith@bu.edu", "asmith@bu.edu"},
	}}

	ds := invoices.NewDataset("2024-03", []invoices.UsageRecord{
		{PI: "alice.smith@bu.edu"},
		{PI: "asmith@bu.edu"},
		{PI: "alice@bu.edu"},
		{PI: "bob@harvard.edu"},
	})
	require.NoError(t, stage.Process(context.Background(), ds))

	assert.Equal(t, "alice@bu.edu", ds.Records[0].PI)
	assert.Equal(t, "alice@bu.edu", ds.Records[1].PI)
	assert.Equal(t, "alice@bu.edu", ds.Records[2].PI)
	assert.Equal(t, "bob@harvard.edu", ds.Records[3].PI)
}

func TestReadAliases(t *testing.T) {
	input := strings.Join([]string{
		"alice@bu.edu,alice.smith@bu.edu, asmith@bu.edu",
		"",
		"noalias@bu.edu",
		"bob@harvard.edu,rsmith@harvard.edu",
	}, "\n")

	aliases, err := ReadAliases(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"alice@bu.edu":    {"alice.smith@bu.edu", "asmith@bu.edu"},
		"bob@harvard.edu": {"rsmith@harvard.edu"},
	}, aliases)
}

func TestPIAliasEmptyMap(t *testing.T) {
	stage := &PIAlias{}
	ds := invoices.NewDataset("2024-03", []invoices.UsageRecord{{PI: "alice@bu.edu"}})
	require.NoError(t, stage.Process(context.Background(), ds))
	assert.Equal(t, "alice@bu.edu", ds.Records[0].PI)
}
