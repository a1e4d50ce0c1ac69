package processors

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nerc-project/invoicing/pkg/invoices"
)

// NonbillableProject names a project excluded from billing. An empty
// Cluster excludes the project on every cluster.
type NonbillableProject struct {
	Project string
	Cluster string
}

// Billability classifies each record as billable or not, applying the
// nonbillable PI list, the nonbillable projects table, the always-nonbillable
// clusters and the course exclusions of courses-nonbillable institutions.
// All string comparison is case-insensitive.
//
// The project column may hold a human-readable name or a project ID; the
// nonbillable projects table may reference either. The comparison is against
// the column as-is, same as upstream, so both representations work without
// double counting.
type Billability struct {
	NonbillablePIs      []string
	NonbillableProjects []NonbillableProject
	CourseInstitutions  []string
	Log                 *logrus.Entry
}

func (s *Billability) Name() string { return StageBillability }

func (s *Billability) Requires() []string {
	return []string{StageColdfrontEnrich, StageAddInstitution}
}

func (s *Billability) Process(ctx context.Context, ds *invoices.Dataset) error {
	log := s.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	nonbillablePI := make(map[string]bool, len(s.NonbillablePIs))
	for _, pi := range s.NonbillablePIs {
		nonbillablePI[strings.ToLower(pi)] = true
	}

	clusterAgnostic := make(map[string]bool)
	clusterSpecific := make(map[[2]string]bool)
	for _, p := range s.NonbillableProjects {
		project := strings.ToLower(p.Project)
		if p.Cluster == "" {
			clusterAgnostic[project] = true
		} else {
			clusterSpecific[[2]string{project, strings.ToLower(p.Cluster)}] = true
		}
	}

	nonbillableCluster := make(map[string]bool, len(invoices.NonbillableClusters))
	for _, c := range invoices.NonbillableClusters {
		nonbillableCluster[strings.ToLower(c)] = true
	}

	courseInstitution := make(map[string]bool, len(s.CourseInstitutions))
	for _, inst := range s.CourseInstitutions {
		courseInstitution[strings.ToLower(inst)] = true
	}

	for i := range ds.Records {
		r := &ds.Records[i]
		project := strings.ToLower(r.ProjectName)
		cluster := strings.ToLower(r.ClusterName)

		excluded := nonbillablePI[strings.ToLower(r.PI)] ||
			clusterAgnostic[project] ||
			clusterSpecific[[2]string{project, cluster}] ||
			nonbillableCluster[cluster] ||
			(r.IsCourse && courseInstitution[strings.ToLower(r.Institution)])

		r.IsBillable = !excluded
		r.MissingPI = r.PI == ""
		if r.MissingPI && r.IsBillable {
			log.WithField("project", r.ProjectName).Warn("billable project has empty PI field")
		}
	}
	return nil
}
