package coldfront

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDump = `[
	{
		"project": {"pi": "alice@bu.edu"},
		"attributes": {
			"Allocated Project ID": "uuid-a",
			"Allocated Project Name": "ProjectA",
			"Institution-Specific Code": "BU-123"
		}
	},
	{
		"project": {"pi": "bob@harvard.edu"},
		"attributes": {
			"Allocated Project ID": "uuid-b",
			"Allocated Project Name": "ProjectB"
		}
	},
	{
		"project": {"pi": "orphan@mit.edu"},
		"attributes": {}
	}
]`

func TestFileSource(t *testing.T) {
	source := NewFileSource(strings.NewReader(sampleDump))
	allocations, err := source.Allocations(context.Background())
	require.NoError(t, err)

	// Allocations without a project ID attribute are dropped.
	require.Len(t, allocations, 2)

	a := allocations["uuid-a"]
	assert.Equal(t, "ProjectA", a.ProjectName)
	assert.Equal(t, "alice@bu.edu", a.PI)
	assert.Equal(t, "BU-123", a.InstitutionCode)

	b := allocations["uuid-b"]
	assert.Empty(t, b.InstitutionCode)
}

func TestFileSourceRepeatedReads(t *testing.T) {
	source := NewFileSource(strings.NewReader(sampleDump))
	first, err := source.Allocations(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)

	// The reader is exhausted after the first call; the decoded map is
	// served again rather than an empty one.
	second, err := source.Allocations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFileSourceBadJSON(t *testing.T) {
	source := NewFileSource(strings.NewReader("not json"))
	_, err := source.Allocations(context.Background())
	assert.Error(t, err)
}

func TestNewAPIClientRequiresCredentials(t *testing.T) {
	_, err := NewAPIClient(context.Background(), APIConfig{
		Endpoint: "https://coldfront.example.org/api/allocations",
		TokenURL: "https://keycloak.example.org/token",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KEYCLOAK_CLIENT_ID")
}
