package processors

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nerc-project/invoicing/pkg/coldfront"
	"github.com/nerc-project/invoicing/pkg/invoices"
)

// ColdfrontEnrich populates project name, PI and institution-specific code
// from the allocation source, keyed by project ID.
//
// Projects unknown to the allocation source are fatal, reported as a single
// list of offending IDs, unless they are themselves in the nonbillable
// projects table or sit on a nonbillable cluster; those are tolerated and
// left unenriched, keeping their ID in the project-name column.
type ColdfrontEnrich struct {
	Source              coldfront.Source
	NonbillableProjects []string
	NonbillableClusters []string
}

func (s *ColdfrontEnrich) Name() string       { return StageColdfrontEnrich }
func (s *ColdfrontEnrich) Requires() []string { return []string{StageValidateClusterName} }

func (s *ColdfrontEnrich) Process(ctx context.Context, ds *invoices.Dataset) error {
	allocations, err := s.Source.Allocations(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch allocation data: %w", err)
	}

	tolerated := make(map[string]bool, len(s.NonbillableProjects))
	for _, p := range s.NonbillableProjects {
		tolerated[strings.ToLower(p)] = true
	}
	nonbillableCluster := make(map[string]bool, len(s.NonbillableClusters))
	for _, c := range s.NonbillableClusters {
		nonbillableCluster[strings.ToLower(c)] = true
	}

	missing := make(map[string]bool)
	for i := range ds.Records {
		r := &ds.Records[i]
		alloc, ok := allocations[r.ProjectID]
		if !ok {
			if tolerated[strings.ToLower(r.ProjectID)] || tolerated[strings.ToLower(r.ProjectName)] ||
				nonbillableCluster[strings.ToLower(r.ClusterName)] {
				continue
			}
			missing[r.ProjectID] = true
			continue
		}
		if alloc.ProjectName != "" {
			r.ProjectName = alloc.ProjectName
		}
		r.PI = alloc.PI
		r.InstitutionCode = alloc.InstitutionCode
	}

	if len(missing) > 0 {
		ids := make([]string, 0, len(missing))
		for id := range missing {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return fmt.Errorf("projects not found in allocation data: %s", strings.Join(ids, ", "))
	}
	return nil
}
