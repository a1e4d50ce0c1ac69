package processors

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nerc-project/invoicing/pkg/invoices"
)

// DefaultKnownClusters are the cluster names the consortium currently bills
// or tolerates.
var DefaultKnownClusters = []string{"ocp-prod", "ocp-test", "stack", "bm"}

// ValidateClusterName rejects records carrying a cluster name outside the
// known set. A typo in the cluster column would silently change exclusion
// behavior downstream, so this is a data-integrity failure.
type ValidateClusterName struct {
	KnownClusters []string
}

func (s *ValidateClusterName) Name() string       { return StageValidateClusterName }
func (s *ValidateClusterName) Requires() []string { return nil }

func (s *ValidateClusterName) Process(ctx context.Context, ds *invoices.Dataset) error {
	known := make(map[string]bool, len(s.KnownClusters))
	for _, c := range s.KnownClusters {
		known[strings.ToLower(c)] = true
	}

	unknown := make(map[string]bool)
	for _, r := range ds.Records {
		if !known[strings.ToLower(r.ClusterName)] {
			unknown[r.ClusterName] = true
		}
	}
	if len(unknown) > 0 {
		names := make([]string, 0, len(unknown))
		for name := range unknown {
			names = append(names, name)
		}
		sort.Strings(names)
		return fmt.Errorf("unknown cluster names in invoice: %s", strings.Join(names, ", "))
	}
	return nil
}
